// Package telemetry polls the temperature and fan speed attributes in the
// background and hands every snapshot to a sink.
package telemetry

import (
	"context"
	"time"
)

// Snapshot is one poll of the device. Fields that could not be read are left
// out rather than zeroed.
type Snapshot struct {
	Time        time.Time    `json:"time"`
	Temperature *int         `json:"temperature_celsius,omitempty"`
	RPM         map[int]int  `json:"rpm"`
	HostSensors []HostSensor `json:"host_sensors,omitempty"`
	HostLoad    *HostLoad    `json:"host_load,omitempty"`
}

// HostSensor is a temperature reported by the host's own sensors rather
// than the fan controller.
type HostSensor struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Temperature float64 `json:"temperature_celsius"`
	Critical    float64 `json:"critical_celsius,omitempty"`
}

// HostLoad is the host utilization at poll time.
type HostLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Sink receives snapshots. Implementations must hand the snapshot over to
// their own goroutine instead of mutating shared state in place.
type Sink interface {
	PublishTelemetry(Snapshot)
}

// HostReader reads host sensors and utilization.
type HostReader interface {
	ReadSensors(ctx context.Context) ([]HostSensor, error)
	ReadLoad(ctx context.Context) (HostLoad, error)
}

// NewHostReader creates a host sensor reader for the current platform.
func NewHostReader() HostReader {
	return newPlatformHostReader()
}
