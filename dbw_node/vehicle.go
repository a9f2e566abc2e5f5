package main

import (
	"encoding/json"
	"fmt"
	"os"

	control "dbw-core/twist_controller"
)

// VehicleConfig is the on-disk controller configuration. Omitted fields keep
// the reference vehicle's defaults.
type VehicleConfig struct {
	Vehicle control.VehicleParams `json:"vehicle"`
	Tuning  control.Tuning        `json:"tuning"`
}

// LoadVehicleConfig loads a vehicle configuration from JSON file
func LoadVehicleConfig(path string) (VehicleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VehicleConfig{}, fmt.Errorf("read file: %w", err)
	}
	return ParseVehicleConfig(data)
}

// ParseVehicleConfig decodes and validates a vehicle configuration
func ParseVehicleConfig(data []byte) (VehicleConfig, error) {
	vc := VehicleConfig{
		Vehicle: control.DefaultVehicleParams(),
		Tuning:  control.DefaultTuning(),
	}
	if err := json.Unmarshal(data, &vc); err != nil {
		return VehicleConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	if err := vc.Vehicle.Validate(); err != nil {
		return VehicleConfig{}, err
	}
	if err := vc.Tuning.Validate(); err != nil {
		return VehicleConfig{}, err
	}
	return vc, nil
}
