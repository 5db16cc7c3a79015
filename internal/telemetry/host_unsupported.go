//go:build !linux

package telemetry

import (
	"context"
	"fmt"
)

// unsupportedHostReader is a fallback for platforms without hwmon.
type unsupportedHostReader struct{}

func newPlatformHostReader() HostReader {
	return &unsupportedHostReader{}
}

// ReadSensors returns an error on unsupported platforms.
func (r *unsupportedHostReader) ReadSensors(ctx context.Context) ([]HostSensor, error) {
	return nil, fmt.Errorf("host sensors not supported on this platform")
}

// ReadLoad returns an error on unsupported platforms.
func (r *unsupportedHostReader) ReadLoad(ctx context.Context) (HostLoad, error) {
	return HostLoad{}, fmt.Errorf("host load not supported on this platform")
}
