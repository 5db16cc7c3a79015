//go:build linux

package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// linuxHostReader reads hwmon sensors through gopsutil.
type linuxHostReader struct{}

func newPlatformHostReader() HostReader {
	return &linuxHostReader{}
}

// ReadSensors returns every host temperature sensor, categorized by name.
func (r *linuxHostReader) ReadSensors(ctx context.Context) ([]HostSensor, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return nil, err
	}

	sensors := make([]HostSensor, 0, len(temps))
	for _, temp := range temps {
		sensors = append(sensors, HostSensor{
			Name:        temp.SensorKey,
			Category:    categorize(temp.SensorKey),
			Temperature: temp.Temperature,
			Critical:    temp.Critical,
		})
	}
	return sensors, nil
}

// ReadLoad returns CPU usage since the previous call and memory usage.
func (r *linuxHostReader) ReadLoad(ctx context.Context) (HostLoad, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostLoad{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostLoad{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	load := HostLoad{MemoryPercent: vm.UsedPercent}
	if len(percentages) > 0 {
		load.CPUPercent = percentages[0]
	}
	return load, nil
}

func categorize(key string) string {
	key = strings.ToLower(key)
	switch {
	case containsAny(key, "cpu", "core", "k10temp", "tctl"):
		return "cpu"
	case containsAny(key, "gpu", "amdgpu", "radeon", "edge", "junction"):
		return "gpu"
	case containsAny(key, "nvme", "drive", "disk"):
		return "drive"
	default:
		return "system"
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
