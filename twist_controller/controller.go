package control

import (
	"fmt"
	"math"
	"time"
)

// Controller turns a desired twist and the measured speed into throttle, brake
// and steering commands.
//
// Control must be called from a single goroutine; the controller keeps the PID
// integral, filter history and last tick time between calls.
type Controller struct {
	params VehicleParams
	tuning Tuning
	clock  Clock

	yaw      *YawController
	throttle *PIDController
	velLPF   *LowPassFilter

	lastTime    time.Time
	hasLastTime bool
	enabled     bool

	// Last tick, for diagnostics
	lastVelError   float64
	lastSampleTime float64
}

// NewController validates params and tuning and builds the controller.
// A nil clock reads the wall clock.
func NewController(params VehicleParams, tuning Tuning, clock Clock) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &Controller{
		params: params,
		tuning: tuning,
		clock:  clock,
		yaw: NewYawController(params.WheelBaseM, params.SteerRatio, tuning.MinSpeedMPS,
			params.MaxLatAccel, params.MaxSteerAngle),
		throttle: NewPIDController(tuning.PIDConfig()),
		velLPF:   NewLowPassFilter(tuning.FilterTau, tuning.FilterTs),
	}, nil
}

// Control runs one control tick
func (c *Controller) Control(cmd ControlCommand) ActuatorCommand {
	if !cmd.DBWEnabled {
		c.disengage()
		return ActuatorCommand{}
	}
	c.enabled = true

	currentVel := c.velLPF.Filt(cmd.CurrentVelocity)

	steer := c.yaw.GetSteering(cmd.LinearVelocity, cmd.AngularVelocity, currentVel)

	velError := cmd.LinearVelocity - currentVel
	sampleTime := c.sampleTime()
	c.lastVelError = velError

	throttle := c.throttle.Step(velError, sampleTime)
	brake := 0.0

	if cmd.LinearVelocity == 0 && currentVel < c.tuning.StopSpeedMPS {
		// Standing still: hold against creep and grade
		throttle = 0.0
		brake = c.tuning.HoldBrakeNm
	} else if throttle < c.tuning.BrakeThrottleThreshold && velError < 0 {
		throttle = 0.0
		decel := math.Max(velError/c.tuning.DecelHorizonS, c.params.DecelLimit)
		brake = math.Abs(decel) * c.params.VehicleMassKg * c.params.WheelRadiusM
	}

	return ActuatorCommand{
		Throttle: throttle,
		Brake:    brake,
		Steer:    steer,
	}
}

// sampleTime returns the seconds since the previous enabled tick and records now
func (c *Controller) sampleTime() float64 {
	now := c.clock.Now()
	dt := c.tuning.NominalSampleTimeS
	if c.hasLastTime {
		dt = math.Max(now.Sub(c.lastTime).Seconds(), c.tuning.MinSampleTimeS)
	}
	c.lastTime = now
	c.hasLastTime = true
	c.lastSampleTime = dt
	return dt
}

// disengage hands authority back: no stale integral, filter history or tick time
// survives into the next engagement.
func (c *Controller) disengage() {
	c.throttle.Reset()
	c.velLPF.Reset()
	c.hasLastTime = false
	c.enabled = false
	c.lastVelError = 0.0
	c.lastSampleTime = 0.0
}

// Enabled reports whether the last tick ran closed-loop
func (c *Controller) Enabled() bool {
	return c.enabled
}

// Params returns the vehicle parameters the controller was built with
func (c *Controller) Params() VehicleParams {
	return c.params
}

// GetDiagnostics returns current controller state for logging/debugging
func (c *Controller) GetDiagnostics() ControllerDiagnostics {
	return ControllerDiagnostics{
		Enabled:          c.enabled,
		FilteredVelocity: c.velLPF.Get(),
		VelocityError:    c.lastVelError,
		SampleTimeS:      c.lastSampleTime,
		PID:              c.throttle.GetDiagnostics(),
	}
}

// ControllerDiagnostics contains controller internal state for monitoring
type ControllerDiagnostics struct {
	Enabled          bool
	FilteredVelocity float64
	VelocityError    float64
	SampleTimeS      float64
	PID              PIDDiagnostics
}

func (d ControllerDiagnostics) String() string {
	return fmt.Sprintf("enabled=%v v_filt=%.3f err=%.3f dt=%.4f P=%.3f I=%.3f",
		d.Enabled, d.FilteredVelocity, d.VelocityError, d.SampleTimeS, d.PID.P, d.PID.I)
}
