// Package curve holds the ramp-up/ramp-down threshold tables of a fan and the
// constraint engine that keeps them consistent while they are edited one point
// at a time.
package curve

import (
	"fmt"
	"strings"
)

// Points is the number of thresholds in a curve, one per fan level 1..5.
const Points = 5

// Default band an edited threshold is clamped to before Apply sees it.
const (
	MinTemp = 30
	MaxTemp = 100
)

// Kind selects one of the two curves of a fan.
type Kind int

const (
	// RampUp thresholds apply while the temperature is rising.
	RampUp Kind = iota
	// RampDown thresholds apply while the temperature is falling.
	RampDown
)

// Kinds lists both curve kinds in attribute order.
var Kinds = []Kind{RampUp, RampDown}

// String returns the attribute name of the curve kind.
func (k Kind) String() string {
	switch k {
	case RampUp:
		return "rampup"
	case RampDown:
		return "rampdown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Other returns the opposite curve of the same fan.
func (k Kind) Other() Kind {
	if k == RampUp {
		return RampDown
	}
	return RampUp
}

// ParseKind accepts "rampup"/"rampdown" and the "up"/"down" shorthands.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rampup", "ramp_up", "up":
		return RampUp, nil
	case "rampdown", "ramp_down", "down":
		return RampDown, nil
	}
	return 0, fmt.Errorf("unknown curve kind %q", s)
}

// Curve is a table of temperature thresholds indexed by fan level minus one.
type Curve [Points]int

// Monotonic reports whether every threshold is at or above the previous one.
func (c Curve) Monotonic() bool {
	for i := 0; i < Points-1; i++ {
		if c[i] > c[i+1] {
			return false
		}
	}
	return true
}

// Pair is the two curves of one fan.
type Pair struct {
	RampUp   Curve `json:"rampup"`
	RampDown Curve `json:"rampdown"`
}

// Get returns the curve of the given kind.
func (p Pair) Get(k Kind) Curve {
	if k == RampUp {
		return p.RampUp
	}
	return p.RampDown
}

// Set replaces the curve of the given kind.
func (p *Pair) Set(k Kind, c Curve) {
	if k == RampUp {
		p.RampUp = c
		return
	}
	p.RampDown = c
}

// Ordered reports whether RampDown never exceeds RampUp at any level.
func (p Pair) Ordered() bool {
	for i := 0; i < Points; i++ {
		if p.RampDown[i] > p.RampUp[i] {
			return false
		}
	}
	return true
}

// Band is the inclusive range edited values are clamped to.
type Band struct {
	Min int
	Max int
}

// DefaultBand is the slider range of the reference hardware.
var DefaultBand = Band{Min: MinTemp, Max: MaxTemp}

// Clamp limits v to the band.
func (b Band) Clamp(v int) int {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}
