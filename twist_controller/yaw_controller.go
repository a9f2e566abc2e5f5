package control

import "math"

// linearEpsilon is the requested speed below which the twist is treated as a
// pure rotation request
const linearEpsilon = 1e-6

// YawController maps a desired twist to a steering wheel angle using a
// kinematic bicycle model
type YawController struct {
	wheelBase     float64
	steerRatio    float64
	minSpeed      float64
	maxLatAccel   float64
	maxSteerAngle float64
}

// NewYawController creates a steering model for the given geometry.
// maxSteerAngle is the steering wheel limit, applied symmetrically.
func NewYawController(wheelBase, steerRatio, minSpeed, maxLatAccel, maxSteerAngle float64) *YawController {
	return &YawController{
		wheelBase:     wheelBase,
		steerRatio:    steerRatio,
		minSpeed:      minSpeed,
		maxLatAccel:   maxLatAccel,
		maxSteerAngle: math.Abs(maxSteerAngle),
	}
}

// GetSteering returns the steering wheel angle (rad) that makes the vehicle
// follow the requested turn rate at its current speed
func (yc *YawController) GetSteering(linearVelocity, angularVelocity, currentVelocity float64) float64 {
	speed := math.Max(math.Abs(currentVelocity), yc.minSpeed)

	// Keep the requested curvature, re-timed to the speed we actually drive
	yawRate := angularVelocity
	if math.Abs(linearVelocity) > linearEpsilon {
		yawRate = angularVelocity * currentVelocity / linearVelocity
	}

	maxYawRate := yc.maxLatAccel / speed
	yawRate = ClampFloat(yawRate, -maxYawRate, maxYawRate)

	if yawRate == 0 || math.IsNaN(yawRate) {
		return 0.0
	}

	angle := math.Atan(yc.wheelBase*yawRate/speed) * yc.steerRatio
	if math.IsNaN(angle) {
		return 0.0
	}
	return ClampFloat(angle, -yc.maxSteerAngle, yc.maxSteerAngle)
}
