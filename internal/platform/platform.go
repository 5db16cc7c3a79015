package platform

import (
	"errors"
	"fmt"
	"os"
	"runtime"
)

// SupportedOS represents supported operating systems
type SupportedOS string

const (
	Linux SupportedOS = "linux"
)

// ErrNoDevice is returned when the driver's attribute directory is missing.
var ErrNoDevice = errors.New("ec_su_axb35 driver not loaded")

// GetOS returns the current operating system
func GetOS() SupportedOS {
	return SupportedOS(runtime.GOOS)
}

// IsSupported returns true if the current OS is supported
func IsSupported() bool {
	return GetOS() == Linux
}

// ValidateSupport returns an error if the current OS is not supported
func ValidateSupport() error {
	if !IsSupported() {
		return fmt.Errorf("unsupported operating system: %s. Supported: linux", runtime.GOOS)
	}
	return nil
}

// CheckDevice returns an error unless basePath is a readable directory.
func CheckDevice(basePath string) error {
	info, err := os.Stat(basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", ErrNoDevice, basePath)
		}
		return fmt.Errorf("failed to stat %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNoDevice, basePath)
	}
	return nil
}
