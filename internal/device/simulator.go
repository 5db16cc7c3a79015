package device

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Simulator is a Store that behaves like the driver: it validates writes,
// reports modes as bracket-marked option lists and derives RPM from the
// selected mode. Pin makes the firmware ignore requests for an attribute.
type Simulator struct {
	mem  *MemStore
	fans []int

	mu     sync.Mutex
	pinned map[string]string
}

// NewSimulator creates a simulated device with the given fans in auto mode.
func NewSimulator(fans []int) *Simulator {
	values := map[string]string{
		TemperatureKey: "45",
		PowerModeKey:   FormatOptions("balanced", PowerModes),
	}
	for _, fan := range fans {
		values[ModeKey(fan)] = FormatOptions("auto", FanModes)
		values[LevelKey(fan)] = "2"
		values[RPMKey(fan)] = "1800"
		values[CurveKey(fan, "rampup")] = "50,60,70,80,90"
		values[CurveKey(fan, "rampdown")] = "40,50,60,70,80"
	}
	return &Simulator{
		mem:    NewMemStore(values),
		fans:   fans,
		pinned: make(map[string]string),
	}
}

// Pin forces an option attribute to keep reporting active regardless of
// what is written to it.
func (s *Simulator) Pin(key, active string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[key] = active
}

// SetTemperature changes the reported temperature.
func (s *Simulator) SetTemperature(degrees int) {
	s.mem.Set(TemperatureKey, strconv.Itoa(degrees))
}

// Read returns the simulated attribute.
func (s *Simulator) Read(ctx context.Context, key string) (string, error) {
	for _, fan := range s.fans {
		if key == RPMKey(fan) {
			return s.rpm(ctx, fan)
		}
	}
	return s.mem.Read(ctx, key)
}

// Write validates value the way the driver does before storing it.
func (s *Simulator) Write(ctx context.Context, key, value string) error {
	stored, err := s.encode(key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.mu.Lock()
	active, pinned := s.pinned[key]
	s.mu.Unlock()
	if pinned {
		stored = FormatOptions(active, s.optionsFor(key))
	}
	return s.mem.Write(ctx, key, stored)
}

func (s *Simulator) encode(key, value string) (string, error) {
	if options := s.optionsFor(key); options != nil {
		if _, err := ParseOption(value, options); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return FormatOptions(value, options), nil
	}

	for _, fan := range s.fans {
		switch key {
		case LevelKey(fan):
			level, err := ParseInt(value)
			if err != nil || level < MinLevel || level > MaxLevel {
				return "", fmt.Errorf("%w: level %q", ErrInvalid, value)
			}
			return strconv.Itoa(level), nil
		case CurveKey(fan, "rampup"), CurveKey(fan, "rampdown"):
			points, err := ParseCurve(value, 5)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			return FormatCurve(points), nil
		case RPMKey(fan):
			return "", fmt.Errorf("%w: %s is read-only", ErrPermission, key)
		}
	}
	if key == TemperatureKey {
		return "", fmt.Errorf("%w: %s is read-only", ErrPermission, key)
	}
	return value, nil
}

func (s *Simulator) optionsFor(key string) []string {
	if key == PowerModeKey {
		return PowerModes
	}
	for _, fan := range s.fans {
		if key == ModeKey(fan) {
			return FanModes
		}
	}
	return nil
}

func (s *Simulator) rpm(ctx context.Context, fan int) (string, error) {
	raw, err := s.mem.Read(ctx, ModeKey(fan))
	if err != nil {
		return "", err
	}
	mode, err := ParseOption(raw, FanModes)
	if err != nil {
		return "", err
	}

	switch mode {
	case "fixed":
		raw, err := s.mem.Read(ctx, LevelKey(fan))
		if err != nil {
			return "", err
		}
		level, err := ParseInt(raw)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(level * 900), nil
	case "curve":
		return "2400", nil
	default:
		return "1800", nil
	}
}
