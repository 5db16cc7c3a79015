package fan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CristiGvl/ecfanctl/internal/curve"
	"github.com/CristiGvl/ecfanctl/internal/device"
)

// FanMode represents different fan control modes
type FanMode string

const (
	ModeAuto  FanMode = "auto"
	ModeFixed FanMode = "fixed"
	ModeCurve FanMode = "curve"
)

// ParseMode validates a fan mode name
func ParseMode(s string) (FanMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range device.FanModes {
		if s == m {
			return FanMode(s), nil
		}
	}
	return "", fmt.Errorf("%w: unsupported fan mode %q", ErrInvalidValue, s)
}

// PowerMode represents the APU power profile
type PowerMode string

const (
	PowerQuiet       PowerMode = "quiet"
	PowerBalanced    PowerMode = "balanced"
	PowerPerformance PowerMode = "performance"
)

// ParsePowerMode validates a power mode name
func ParsePowerMode(s string) (PowerMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range device.PowerModes {
		if s == m {
			return PowerMode(s), nil
		}
	}
	return "", fmt.Errorf("%w: unsupported power mode %q", ErrInvalidValue, s)
}

// State is the control state of a single fan
type State struct {
	ID           int        `json:"id"`
	Mode         FanMode    `json:"mode,omitempty"`
	Level        int        `json:"level,omitempty"`
	Curves       curve.Pair `json:"curves"`
	CurvesLoaded bool       `json:"curves_loaded"`
}

// Edit is the outcome of a curve point edit
type Edit struct {
	Curves curve.Pair `json:"curves"`
	// Changed is false when the point already had the requested value.
	Changed bool `json:"changed"`
	// Touched is true when the opposite curve had to follow the edit.
	Touched bool `json:"touched_other"`
}

var (
	// ErrUnknownFan is returned for fan ids that are not configured.
	ErrUnknownFan = errors.New("unknown fan")
	// ErrInvalidValue is returned for out-of-range or malformed requests.
	ErrInvalidValue = errors.New("invalid value")
	// ErrCurvesUnknown is returned when editing a curve that was never read.
	ErrCurvesUnknown = errors.New("fan curves have not been read from the device")
	// ErrDeviceWrite wraps every failed device write.
	ErrDeviceWrite = errors.New("device write failed")
)

// Observer is notified of device activity, typically for metrics.
type Observer interface {
	WriteDone(key string, err error)
	WriteSuperseded(key string)
	WriteDiscarded(key string)
	ReadFailed(key string, err error)
	Verified(key string, accepted bool)
	ReadbackFailed(key string, err error)
}

type nopObserver struct{}

func (nopObserver) WriteDone(string, error)      {}
func (nopObserver) WriteSuperseded(string)       {}
func (nopObserver) WriteDiscarded(string)        {}
func (nopObserver) ReadFailed(string, error)     {}
func (nopObserver) Verified(string, bool)        {}
func (nopObserver) ReadbackFailed(string, error) {}
