package control

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidVehicleParams is returned when the vehicle geometry or limits cannot
	// produce meaningful actuator commands.
	ErrInvalidVehicleParams = errors.New("invalid vehicle params")

	// ErrInvalidTuning is returned for controller tuning that cannot be run.
	ErrInvalidTuning = errors.New("invalid controller tuning")
)

// VehicleParams holds the vehicle description (SI units)
type VehicleParams struct {
	VehicleMassKg   float64 `json:"vehicle_mass_kg"`
	FuelCapacityGal float64 `json:"fuel_capacity_gal"`
	BrakeDeadband   float64 `json:"brake_deadband"`
	DecelLimit      float64 `json:"decel_limit"` // m/s², negative
	AccelLimit      float64 `json:"accel_limit"` // m/s², positive
	WheelRadiusM    float64 `json:"wheel_radius_m"`
	WheelBaseM      float64 `json:"wheel_base_m"`
	SteerRatio      float64 `json:"steer_ratio"`
	MaxLatAccel     float64 `json:"max_lat_accel"`   // m/s²
	MaxSteerAngle   float64 `json:"max_steer_angle"` // rad, steering wheel
}

// DefaultVehicleParams returns the parameters of the reference test vehicle
func DefaultVehicleParams() VehicleParams {
	return VehicleParams{
		VehicleMassKg:   1736.35,
		FuelCapacityGal: 13.5,
		BrakeDeadband:   0.1,
		DecelLimit:      -5.0,
		AccelLimit:      1.0,
		WheelRadiusM:    0.2413,
		WheelBaseM:      2.8498,
		SteerRatio:      14.8,
		MaxLatAccel:     3.0,
		MaxSteerAngle:   8.2,
	}
}

// Validate checks the invariants every control tick relies on
func (p VehicleParams) Validate() error {
	for name, v := range map[string]float64{
		"vehicle_mass_kg":   p.VehicleMassKg,
		"fuel_capacity_gal": p.FuelCapacityGal,
		"brake_deadband":    p.BrakeDeadband,
		"decel_limit":       p.DecelLimit,
		"accel_limit":       p.AccelLimit,
		"wheel_radius_m":    p.WheelRadiusM,
		"wheel_base_m":      p.WheelBaseM,
		"steer_ratio":       p.SteerRatio,
		"max_lat_accel":     p.MaxLatAccel,
		"max_steer_angle":   p.MaxSteerAngle,
	} {
		if !isFinite(v) {
			return fmt.Errorf("%w: %s must be finite, got %g", ErrInvalidVehicleParams, name, v)
		}
	}

	switch {
	case p.VehicleMassKg <= 0:
		return fmt.Errorf("%w: vehicle_mass_kg must be > 0, got %g", ErrInvalidVehicleParams, p.VehicleMassKg)
	case p.DecelLimit >= 0:
		return fmt.Errorf("%w: decel_limit must be < 0, got %g", ErrInvalidVehicleParams, p.DecelLimit)
	case p.AccelLimit <= 0:
		return fmt.Errorf("%w: accel_limit must be > 0, got %g", ErrInvalidVehicleParams, p.AccelLimit)
	case p.WheelRadiusM <= 0:
		return fmt.Errorf("%w: wheel_radius_m must be > 0, got %g", ErrInvalidVehicleParams, p.WheelRadiusM)
	case p.WheelBaseM <= 0:
		return fmt.Errorf("%w: wheel_base_m must be > 0, got %g", ErrInvalidVehicleParams, p.WheelBaseM)
	case p.SteerRatio <= 0:
		return fmt.Errorf("%w: steer_ratio must be > 0, got %g", ErrInvalidVehicleParams, p.SteerRatio)
	case p.MaxLatAccel <= 0:
		return fmt.Errorf("%w: max_lat_accel must be > 0, got %g", ErrInvalidVehicleParams, p.MaxLatAccel)
	case p.MaxSteerAngle <= 0:
		return fmt.Errorf("%w: max_steer_angle must be > 0, got %g", ErrInvalidVehicleParams, p.MaxSteerAngle)
	}
	return nil
}

// Tuning holds the controller constants that are tuned per vehicle rather than
// derived from its geometry.
type Tuning struct {
	// Throttle PID
	Kp          float64 `json:"kp"`
	Ki          float64 `json:"ki"`
	Kd          float64 `json:"kd"`
	ThrottleMin float64 `json:"throttle_min"`
	ThrottleMax float64 `json:"throttle_max"`

	// Velocity low-pass filter; cutoff frequency is 1/(2*pi*tau)
	FilterTau float64 `json:"filter_tau"`
	FilterTs  float64 `json:"filter_ts"`

	// Floor used by the steering model so a standing vehicle never divides by zero
	MinSpeedMPS float64 `json:"min_speed_mps"`

	// Stop-and-hold: below StopSpeedMPS with a zero request the brake holds HoldBrakeNm
	// (about 1 m/s² for the reference vehicle)
	StopSpeedMPS float64 `json:"stop_speed_mps"`
	HoldBrakeNm  float64 `json:"hold_brake_nm"`

	// Throttle below this while too fast is treated as a brake request
	BrakeThrottleThreshold float64 `json:"brake_throttle_threshold"`

	// Sample time used for the first tick after (re)engagement, and the floor
	// applied to back-to-back ticks
	NominalSampleTimeS float64 `json:"nominal_sample_time_s"`
	MinSampleTimeS     float64 `json:"min_sample_time_s"`

	// Horizon over which an excess speed is shed; decel = velocity error / horizon
	DecelHorizonS float64 `json:"decel_horizon_s"`
}

// DefaultTuning returns the tuning used on the reference vehicle at 50 Hz
func DefaultTuning() Tuning {
	return Tuning{
		Kp:                     0.3,
		Ki:                     0.1,
		Kd:                     0.0,
		ThrottleMin:            0.0,
		ThrottleMax:            0.2,
		FilterTau:              0.5,
		FilterTs:               0.02,
		MinSpeedMPS:            0.1,
		StopSpeedMPS:           0.1,
		HoldBrakeNm:            700.0,
		BrakeThrottleThreshold: 0.1,
		NominalSampleTimeS:     0.02,
		MinSampleTimeS:         0.001,
		DecelHorizonS:          1.0,
	}
}

// Validate rejects tuning that would make the loop ill-defined
func (t Tuning) Validate() error {
	for name, v := range map[string]float64{
		"kp":                       t.Kp,
		"ki":                       t.Ki,
		"kd":                       t.Kd,
		"throttle_min":             t.ThrottleMin,
		"throttle_max":             t.ThrottleMax,
		"filter_tau":               t.FilterTau,
		"filter_ts":                t.FilterTs,
		"min_speed_mps":            t.MinSpeedMPS,
		"stop_speed_mps":           t.StopSpeedMPS,
		"hold_brake_nm":            t.HoldBrakeNm,
		"brake_throttle_threshold": t.BrakeThrottleThreshold,
		"nominal_sample_time_s":    t.NominalSampleTimeS,
		"min_sample_time_s":        t.MinSampleTimeS,
		"decel_horizon_s":          t.DecelHorizonS,
	} {
		if !isFinite(v) {
			return fmt.Errorf("%w: %s must be finite, got %g", ErrInvalidTuning, name, v)
		}
	}

	switch {
	case t.ThrottleMin > t.ThrottleMax:
		return fmt.Errorf("%w: throttle_min %g > throttle_max %g", ErrInvalidTuning, t.ThrottleMin, t.ThrottleMax)
	case t.FilterTau < 0 || t.FilterTs <= 0:
		return fmt.Errorf("%w: filter tau=%g ts=%g", ErrInvalidTuning, t.FilterTau, t.FilterTs)
	case t.MinSpeedMPS <= 0:
		return fmt.Errorf("%w: min_speed_mps must be > 0, got %g", ErrInvalidTuning, t.MinSpeedMPS)
	case t.HoldBrakeNm < 0:
		return fmt.Errorf("%w: hold_brake_nm must be >= 0, got %g", ErrInvalidTuning, t.HoldBrakeNm)
	case t.NominalSampleTimeS <= 0 || t.MinSampleTimeS <= 0:
		return fmt.Errorf("%w: sample times must be > 0 (nominal=%g min=%g)", ErrInvalidTuning, t.NominalSampleTimeS, t.MinSampleTimeS)
	case t.DecelHorizonS <= 0:
		return fmt.Errorf("%w: decel_horizon_s must be > 0, got %g", ErrInvalidTuning, t.DecelHorizonS)
	}
	return nil
}

// PIDConfig holds PID controller parameters
type PIDConfig struct {
	Kp  float64 `json:"kp"`
	Ki  float64 `json:"ki"`
	Kd  float64 `json:"kd"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PIDConfig returns the throttle PID configuration for this tuning
func (t Tuning) PIDConfig() PIDConfig {
	return PIDConfig{
		Kp:  t.Kp,
		Ki:  t.Ki,
		Kd:  t.Kd,
		Min: t.ThrottleMin,
		Max: t.ThrottleMax,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
