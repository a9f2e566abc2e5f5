package control

// PIDController implements a discrete PID controller with output clamping.
// Anti-windup: the integral is only committed on steps whose output is not saturated.
type PIDController struct {
	cfg PIDConfig

	// State
	integral  float64
	lastError float64
}

// NewPIDController creates a new PID controller with given configuration
func NewPIDController(cfg PIDConfig) *PIDController {
	return &PIDController{cfg: cfg}
}

// Reset clears the PID state
func (pid *PIDController) Reset() {
	pid.integral = 0.0
	pid.lastError = 0.0
}

// Step computes the control output for error over sampleTime seconds
//
// Returns: output clamped to [Min, Max]
func (pid *PIDController) Step(error, sampleTime float64) float64 {
	integral := pid.integral + error*sampleTime

	var derivative float64
	if sampleTime > 0 {
		derivative = (error - pid.lastError) / sampleTime
	}
	pid.lastError = error

	output := pid.cfg.Kp*error + pid.cfg.Ki*integral + pid.cfg.Kd*derivative

	// Saturated steps keep the previous integral
	if output > pid.cfg.Max {
		return pid.cfg.Max
	}
	if output < pid.cfg.Min {
		return pid.cfg.Min
	}

	pid.integral = integral
	return output
}

// GetDiagnostics returns current PID state for logging/debugging
func (pid *PIDController) GetDiagnostics() PIDDiagnostics {
	return PIDDiagnostics{
		Error:    pid.lastError,
		Integral: pid.integral,
		P:        pid.cfg.Kp * pid.lastError,
		I:        pid.cfg.Ki * pid.integral,
	}
}

// PIDDiagnostics contains PID internal state for monitoring
type PIDDiagnostics struct {
	Error    float64
	Integral float64
	P        float64
	I        float64
}

// GetIntegral returns the current integral term value
func (pid *PIDController) GetIntegral() float64 {
	return pid.integral
}

// GetError returns the most recent error
func (pid *PIDController) GetError() float64 {
	return pid.lastError
}
