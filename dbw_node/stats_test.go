package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	control "dbw-core/twist_controller"
)

func TestTrackingStatsEmpty(t *testing.T) {
	t.Parallel()

	s := NewTrackingStats()
	s.Add(false, 0, control.ActuatorCommand{})

	sum := s.Summary()
	assert.Equal(t, uint64(1), sum.Ticks)
	assert.Equal(t, uint64(0), sum.EnabledTicks)
	assert.Zero(t, sum.MeanVelError)
	assert.Zero(t, sum.WindowSamples)
}

func TestTrackingStatsSummary(t *testing.T) {
	t.Parallel()

	s := NewTrackingStats()
	s.Add(true, 1, control.ActuatorCommand{Throttle: 0.2})
	s.Add(true, -1, control.ActuatorCommand{Brake: 400})
	s.Add(true, 3, control.ActuatorCommand{})
	s.Add(false, 10, control.ActuatorCommand{})

	sum := s.Summary()
	assert.Equal(t, uint64(4), sum.Ticks)
	assert.Equal(t, uint64(3), sum.EnabledTicks)
	assert.Equal(t, uint64(1), sum.AccelTicks)
	assert.Equal(t, uint64(1), sum.BrakeTicks)
	assert.Equal(t, uint64(1), sum.CoastTicks)
	assert.InDelta(t, 1.0, sum.MeanVelError, 1e-12)
	assert.InDelta(t, 2.0, sum.StdVelError, 1e-12)
	assert.InDelta(t, math.Sqrt(11.0/3.0), sum.RMSVelError, 1e-12)
	assert.InDelta(t, 400.0/3.0, sum.MeanBrakeNm, 1e-9)
	assert.Contains(t, sum.String(), "enabled=3")
}

func TestTrackingStatsWindow(t *testing.T) {
	t.Parallel()

	s := NewTrackingStats()
	for i := 0; i < statsWindow+10; i++ {
		s.Add(true, float64(i), control.ActuatorCommand{})
	}
	sum := s.Summary()
	assert.Equal(t, statsWindow, sum.WindowSamples)
	assert.Equal(t, uint64(statsWindow+10), sum.EnabledTicks)
}
