package control

import "time"

// ControlCommand is the per-tick controller input
type ControlCommand struct {
	LinearVelocity  float64 // desired, m/s
	AngularVelocity float64 // desired, rad/s
	CurrentVelocity float64 // measured, m/s
	DBWEnabled      bool
}

// ActuatorCommand contains throttle, brake and steering commands.
// At most one of Throttle and Brake is non-zero.
type ActuatorCommand struct {
	Throttle float64 // fraction of full pedal
	Brake    float64 // N*m
	Steer    float64 // rad, steering wheel
}

// IsZero reports whether all actuators are released
func (c ActuatorCommand) IsZero() bool {
	return c.Throttle == 0 && c.Brake == 0 && c.Steer == 0
}

// Clock supplies the time used to measure the interval between ticks
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// BoolToFloat converts bool to float64 (for CAN encoding)
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// GetControlModeStr returns a string describing which actuator is active
func GetControlModeStr(cmd ActuatorCommand) string {
	if cmd.Throttle > 0 {
		return "[ACCEL]"
	} else if cmd.Brake > 0 {
		return "[BRAKE]"
	}
	return "[COAST]"
}
