package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	control "dbw-core/twist_controller"
)

// statsWindow bounds the samples kept for the summary (60 s at 50 Hz)
const statsWindow = 3000

// TrackingStats accumulates closed-loop performance over a rolling window
type TrackingStats struct {
	velErrors []float64
	brakes    []float64

	ticks      uint64
	accelTicks uint64
	brakeTicks uint64
	coastTicks uint64
	offTicks   uint64
}

func NewTrackingStats() *TrackingStats {
	return &TrackingStats{
		velErrors: make([]float64, 0, statsWindow),
		brakes:    make([]float64, 0, statsWindow),
	}
}

// Add records one tick
func (s *TrackingStats) Add(enabled bool, velError float64, cmd control.ActuatorCommand) {
	s.ticks++
	if !enabled {
		s.offTicks++
		return
	}
	switch control.GetControlModeStr(cmd) {
	case "[ACCEL]":
		s.accelTicks++
	case "[BRAKE]":
		s.brakeTicks++
	default:
		s.coastTicks++
	}

	s.velErrors = append(s.velErrors, velError)
	if len(s.velErrors) > statsWindow {
		s.velErrors = s.velErrors[1:]
	}
	s.brakes = append(s.brakes, cmd.Brake)
	if len(s.brakes) > statsWindow {
		s.brakes = s.brakes[1:]
	}
}

// TrackingSummary is a snapshot of TrackingStats
type TrackingSummary struct {
	Ticks         uint64
	EnabledTicks  uint64
	AccelTicks    uint64
	BrakeTicks    uint64
	CoastTicks    uint64
	MeanVelError  float64
	StdVelError   float64
	RMSVelError   float64
	MeanBrakeNm   float64
	WindowSamples int
}

func (s *TrackingStats) Summary() TrackingSummary {
	sum := TrackingSummary{
		Ticks:         s.ticks,
		EnabledTicks:  s.ticks - s.offTicks,
		AccelTicks:    s.accelTicks,
		BrakeTicks:    s.brakeTicks,
		CoastTicks:    s.coastTicks,
		WindowSamples: len(s.velErrors),
	}
	if len(s.velErrors) == 0 {
		return sum
	}
	sum.MeanVelError = stat.Mean(s.velErrors, nil)
	if len(s.velErrors) > 1 {
		sum.StdVelError = stat.StdDev(s.velErrors, nil)
	}
	sum.RMSVelError = math.Sqrt(stat.MomentAbout(2, s.velErrors, 0, nil))
	sum.MeanBrakeNm = stat.Mean(s.brakes, nil)
	return sum
}

func (s TrackingSummary) String() string {
	return fmt.Sprintf("ticks=%d enabled=%d accel=%d brake=%d coast=%d err_mean=%.3f err_std=%.3f err_rms=%.3f brake_mean=%.1fNm (window=%d)",
		s.Ticks, s.EnabledTicks, s.AccelTicks, s.BrakeTicks, s.CoastTicks,
		s.MeanVelError, s.StdVelError, s.RMSVelError, s.MeanBrakeNm, s.WindowSamples)
}
