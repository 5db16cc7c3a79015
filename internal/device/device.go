// Package device is the attribute boundary of the ec_su_axb35 driver: a
// key-addressed store of plain-text attributes plus the encodings the driver
// uses for option lists, integers and curves.
package device

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -destination=mock_store.go -package=device . Store

// DefaultBasePath is where the driver exposes its attributes.
const DefaultBasePath = "/sys/class/ec_su_axb35"

var (
	// ErrNotFound is returned when an attribute does not exist.
	ErrNotFound = errors.New("attribute not found")
	// ErrPermission is returned when an attribute cannot be opened.
	ErrPermission = errors.New("attribute permission denied")
	// ErrEmpty is returned when an attribute reads back as empty text.
	ErrEmpty = errors.New("attribute is empty")
	// ErrInvalid is returned when the device rejects a written value.
	ErrInvalid = errors.New("invalid attribute value")
)

// Store reads and writes device attributes. Implementations must be safe to
// call from any goroutine; no atomicity is provided across keys.
type Store interface {
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key, value string) error
}

// Attribute names below the base path.
const (
	TemperatureKey = "temp1/temp"
	PowerModeKey   = "apu/power_mode"
)

// ModeKey returns the mode attribute of a fan.
func ModeKey(fan int) string { return fmt.Sprintf("fan%d/mode", fan) }

// LevelKey returns the fixed-level attribute of a fan.
func LevelKey(fan int) string { return fmt.Sprintf("fan%d/level", fan) }

// RPMKey returns the tachometer attribute of a fan.
func RPMKey(fan int) string { return fmt.Sprintf("fan%d/rpm", fan) }

// CurveKey returns the curve attribute of a fan, curve being "rampup" or
// "rampdown".
func CurveKey(fan int, curve string) string {
	return fmt.Sprintf("fan%d/%s_curve", fan, curve)
}

// Fan modes accepted by the mode attribute.
var FanModes = []string{"auto", "fixed", "curve"}

// Power modes accepted by the APU power mode attribute.
var PowerModes = []string{"quiet", "balanced", "performance"}

// Levels accepted by the level attribute.
const (
	MinLevel = 1
	MaxLevel = 5
)
