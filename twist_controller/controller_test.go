package control

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock advances only when told to
type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestController(t *testing.T) (*Controller, *manualClock) {
	t.Helper()
	clock := newManualClock()
	ctrl, err := NewController(DefaultVehicleParams(), DefaultTuning(), clock)
	require.NoError(t, err)
	return ctrl, clock
}

func TestNewControllerRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	cases := map[string]func(p *VehicleParams){
		"zero wheel radius":     func(p *VehicleParams) { p.WheelRadiusM = 0 },
		"negative wheel radius": func(p *VehicleParams) { p.WheelRadiusM = -0.2 },
		"positive decel limit":  func(p *VehicleParams) { p.DecelLimit = 1 },
		"zero accel limit":      func(p *VehicleParams) { p.AccelLimit = 0 },
		"zero mass":             func(p *VehicleParams) { p.VehicleMassKg = 0 },
		"zero wheel base":       func(p *VehicleParams) { p.WheelBaseM = 0 },
		"zero steer ratio":      func(p *VehicleParams) { p.SteerRatio = 0 },
		"zero max lat accel":    func(p *VehicleParams) { p.MaxLatAccel = 0 },
		"zero max steer angle":  func(p *VehicleParams) { p.MaxSteerAngle = 0 },
		"NaN wheel radius":      func(p *VehicleParams) { p.WheelRadiusM = math.NaN() },
		"NaN mass":              func(p *VehicleParams) { p.VehicleMassKg = math.NaN() },
		"infinite wheel base":   func(p *VehicleParams) { p.WheelBaseM = math.Inf(1) },
		"NaN brake deadband":    func(p *VehicleParams) { p.BrakeDeadband = math.NaN() },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			params := DefaultVehicleParams()
			mutate(&params)
			ctrl, err := NewController(params, DefaultTuning(), nil)
			assert.Nil(t, ctrl)
			assert.ErrorIs(t, err, ErrInvalidVehicleParams)
		})
	}
}

func TestNewControllerRejectsInvalidTuning(t *testing.T) {
	t.Parallel()

	tuning := DefaultTuning()
	tuning.ThrottleMin = 0.5
	tuning.ThrottleMax = 0.2
	_, err := NewController(DefaultVehicleParams(), tuning, nil)
	assert.ErrorIs(t, err, ErrInvalidTuning)

	tuning = DefaultTuning()
	tuning.NominalSampleTimeS = 0
	_, err = NewController(DefaultVehicleParams(), tuning, nil)
	assert.ErrorIs(t, err, ErrInvalidTuning)

	tuning = DefaultTuning()
	tuning.Kp = math.NaN()
	_, err = NewController(DefaultVehicleParams(), tuning, nil)
	assert.ErrorIs(t, err, ErrInvalidTuning)

	tuning = DefaultTuning()
	tuning.HoldBrakeNm = math.Inf(1)
	_, err = NewController(DefaultVehicleParams(), tuning, nil)
	assert.ErrorIs(t, err, ErrInvalidTuning)
}

func TestControllerParams(t *testing.T) {
	t.Parallel()

	params := DefaultVehicleParams()
	params.VehicleMassKg = 2000
	ctrl, err := NewController(params, DefaultTuning(), nil)
	require.NoError(t, err)
	assert.Equal(t, params, ctrl.Params())
}

func TestNewControllerDefaultsToSystemClock(t *testing.T) {
	t.Parallel()

	ctrl, err := NewController(DefaultVehicleParams(), DefaultTuning(), nil)
	require.NoError(t, err)
	assert.IsType(t, SystemClock{}, ctrl.clock)
}

func TestControlHoldAtStopScenario(t *testing.T) {
	t.Parallel()
	ctrl, clock := newTestController(t)

	cmd := ControlCommand{CurrentVelocity: 0, DBWEnabled: true, LinearVelocity: 0, AngularVelocity: 0}

	out := ctrl.Control(cmd)
	assert.Equal(t, ActuatorCommand{Throttle: 0, Brake: 700, Steer: 0}, out)

	clock.Advance(20 * time.Millisecond)
	out = ctrl.Control(cmd)
	assert.Equal(t, ActuatorCommand{Throttle: 0, Brake: 700, Steer: 0}, out)
	assert.InDelta(t, 0.02, ctrl.GetDiagnostics().SampleTimeS, 1e-9)
}

func TestControlHoldOverridesPID(t *testing.T) {
	t.Parallel()
	ctrl, clock := newTestController(t)

	// Build up PID history while driving
	for i := 0; i < 50; i++ {
		ctrl.Control(ControlCommand{LinearVelocity: 5, CurrentVelocity: 0.05, DBWEnabled: true})
		clock.Advance(20 * time.Millisecond)
	}

	out := ctrl.Control(ControlCommand{LinearVelocity: 0, CurrentVelocity: 0.05, DBWEnabled: true})
	assert.Equal(t, 0.0, out.Throttle)
	assert.Equal(t, DefaultTuning().HoldBrakeNm, out.Brake)
}

func TestControlDisabledScenario(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(t)

	out := ctrl.Control(ControlCommand{CurrentVelocity: 0, DBWEnabled: false, LinearVelocity: 0, AngularVelocity: 0})
	assert.Equal(t, ActuatorCommand{}, out)
	assert.True(t, out.IsZero())
	assert.False(t, ctrl.Enabled())
}

func TestControlDisableResetsState(t *testing.T) {
	t.Parallel()
	ctrl, clock := newTestController(t)

	// Accelerate from rest with a small error so the PID integrates unsaturated
	for i := 0; i < 100; i++ {
		ctrl.Control(ControlCommand{LinearVelocity: 0.5, CurrentVelocity: 0.2, DBWEnabled: true})
		clock.Advance(20 * time.Millisecond)
	}
	require.NotZero(t, ctrl.throttle.GetIntegral())
	require.True(t, ctrl.Enabled())

	out := ctrl.Control(ControlCommand{LinearVelocity: 0.5, CurrentVelocity: 0.2, DBWEnabled: false, AngularVelocity: 0.3})
	assert.Equal(t, ActuatorCommand{}, out)
	assert.Zero(t, ctrl.throttle.GetIntegral())
	assert.Zero(t, ctrl.throttle.GetError())
	assert.False(t, ctrl.velLPF.Ready())

	// Re-engaging after a long pause uses the nominal sample time, not the gap
	clock.Advance(30 * time.Second)
	ctrl.Control(ControlCommand{LinearVelocity: 0.5, CurrentVelocity: 0.2, DBWEnabled: true})
	diag := ctrl.GetDiagnostics()
	assert.InDelta(t, DefaultTuning().NominalSampleTimeS, diag.SampleTimeS, 1e-9)
	assert.InDelta(t, 0.3*DefaultTuning().NominalSampleTimeS, diag.PID.Integral, 1e-9)
}

func TestControlDecelerationClamp(t *testing.T) {
	t.Parallel()

	params := DefaultVehicleParams()
	maxBrake := math.Abs(params.DecelLimit) * params.VehicleMassKg * params.WheelRadiusM

	for _, current := range []float64{1, 3, 5.5, 10, 20, 40} {
		ctrl, clock := newTestController(t)
		clock.Advance(20 * time.Millisecond)
		out := ctrl.Control(ControlCommand{LinearVelocity: 0.5, CurrentVelocity: current, DBWEnabled: true})

		assert.Zero(t, out.Throttle, "current=%v", current)
		assert.Greater(t, out.Brake, 0.0, "current=%v", current)
		assert.LessOrEqual(t, out.Brake/(params.VehicleMassKg*params.WheelRadiusM), math.Abs(params.DecelLimit)+1e-9)
		assert.LessOrEqual(t, out.Brake, maxBrake+1e-6)
	}
}

func TestControlDecelerationBrakeTorque(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(t)

	params := DefaultVehicleParams()
	out := ctrl.Control(ControlCommand{LinearVelocity: 8, CurrentVelocity: 10, DBWEnabled: true})

	// First sample seeds the filter, so the error is exactly -2 m/s over a 1 s horizon
	assert.Zero(t, out.Throttle)
	assert.InDelta(t, 2.0*params.VehicleMassKg*params.WheelRadiusM, out.Brake, 1e-9)
}

func TestControlAccelerates(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(t)

	out := ctrl.Control(ControlCommand{LinearVelocity: 10, CurrentVelocity: 5, DBWEnabled: true})
	assert.Equal(t, DefaultTuning().ThrottleMax, out.Throttle)
	assert.Zero(t, out.Brake)
	assert.Equal(t, "[ACCEL]", GetControlModeStr(out))
}

func TestControlNeverCommandsThrottleAndBrake(t *testing.T) {
	t.Parallel()
	ctrl, clock := newTestController(t)

	targets := []float64{0, 2, 10, 4, 0, 15, 15, 1}
	v := 0.0
	for _, target := range targets {
		for i := 0; i < 100; i++ {
			out := ctrl.Control(ControlCommand{LinearVelocity: target, CurrentVelocity: v, AngularVelocity: 0.1, DBWEnabled: true})
			assert.False(t, out.Throttle != 0 && out.Brake != 0, "throttle=%v brake=%v", out.Throttle, out.Brake)
			assert.GreaterOrEqual(t, out.Brake, 0.0)
			assert.GreaterOrEqual(t, out.Throttle, 0.0)
			assert.LessOrEqual(t, out.Throttle, DefaultTuning().ThrottleMax)
			assert.LessOrEqual(t, math.Abs(out.Steer), DefaultVehicleParams().MaxSteerAngle)

			// crude plant: throttle accelerates, brake decelerates
			v += (out.Throttle*5 - out.Brake/(DefaultVehicleParams().VehicleMassKg*DefaultVehicleParams().WheelRadiusM)) * 0.02
			if v < 0 {
				v = 0
			}
			clock.Advance(20 * time.Millisecond)
		}
	}
}

func TestControlSampleTimeFloor(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(t)

	ctrl.Control(ControlCommand{LinearVelocity: 1, CurrentVelocity: 0.9, DBWEnabled: true})
	// same timestamp again
	ctrl.Control(ControlCommand{LinearVelocity: 1, CurrentVelocity: 0.9, DBWEnabled: true})
	assert.Equal(t, DefaultTuning().MinSampleTimeS, ctrl.GetDiagnostics().SampleTimeS)
}

func TestControlSteersWithFilteredVelocity(t *testing.T) {
	t.Parallel()
	ctrl, clock := newTestController(t)

	ctrl.Control(ControlCommand{LinearVelocity: 10, CurrentVelocity: 10, DBWEnabled: true})
	clock.Advance(20 * time.Millisecond)
	out := ctrl.Control(ControlCommand{LinearVelocity: 10, AngularVelocity: 0.1, CurrentVelocity: 12, DBWEnabled: true})

	filtered := ctrl.GetDiagnostics().FilteredVelocity
	require.Greater(t, filtered, 10.0)
	require.Less(t, filtered, 12.0)

	p := DefaultVehicleParams()
	yc := NewYawController(p.WheelBaseM, p.SteerRatio, DefaultTuning().MinSpeedMPS, p.MaxLatAccel, p.MaxSteerAngle)
	assert.InDelta(t, yc.GetSteering(10, 0.1, filtered), out.Steer, 1e-12)
}
