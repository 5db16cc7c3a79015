// Package view owns the state shown to operators. A single goroutine applies
// every change; pollers, timers and request handlers only send it messages.
package view

import (
	"time"

	"github.com/rs/xid"

	"github.com/CristiGvl/ecfanctl/internal/curve"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
)

// maxEvents is the number of recent events kept in the model.
const maxEvents = 64

// EventKind classifies events.
type EventKind string

const (
	// EventModeConfirmed reports the value the device adopted after a write.
	EventModeConfirmed EventKind = "mode_confirmed"
	// EventWriteFailed reports a device write that did not go through.
	EventWriteFailed EventKind = "write_failed"
	// EventReadbackFailed reports a read-back that produced no data.
	EventReadbackFailed EventKind = "readback_failed"
	// EventTelemetry carries a telemetry snapshot to subscribers. It is not
	// kept in the model's event list.
	EventTelemetry EventKind = "telemetry"
)

// Event is something operators should be told about.
type Event struct {
	ID        string              `json:"id"`
	Time      time.Time           `json:"time"`
	Kind      EventKind           `json:"kind"`
	Key       string              `json:"key,omitempty"`
	Requested string              `json:"requested,omitempty"`
	Actual    string              `json:"actual,omitempty"`
	Accepted  bool                `json:"accepted,omitempty"`
	Error     string              `json:"error,omitempty"`
	Telemetry *telemetry.Snapshot `json:"telemetry,omitempty"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(kind EventKind, key string) Event {
	return Event{ID: xid.New().String(), Kind: kind, Key: key}
}

// FanView is the displayed state of one fan.
type FanView struct {
	ID           int        `json:"id"`
	Mode         string     `json:"mode,omitempty"`
	Level        int        `json:"level,omitempty"`
	Curves       curve.Pair `json:"curves"`
	CurvesLoaded bool       `json:"curves_loaded"`
	RPM          *int       `json:"rpm,omitempty"`
}

// Model is everything the control surface renders.
type Model struct {
	Fans      map[int]FanView     `json:"fans"`
	PowerMode string              `json:"power_mode,omitempty"`
	Telemetry *telemetry.Snapshot `json:"telemetry,omitempty"`
	Events    []Event             `json:"events"`
}

// Fan returns the view of a fan, creating it on first use.
func (m *Model) Fan(id int) FanView {
	f, ok := m.Fans[id]
	if !ok {
		f = FanView{ID: id}
	}
	return f
}

// UpdateFan applies fn to the view of fan id.
func (m *Model) UpdateFan(id int, fn func(*FanView)) {
	f := m.Fan(id)
	fn(&f)
	m.Fans[id] = f
}

func (m *Model) addEvent(e Event) {
	m.Events = append(m.Events, e)
	if len(m.Events) > maxEvents {
		m.Events = append([]Event(nil), m.Events[len(m.Events)-maxEvents:]...)
	}
}

func (m *Model) clone() Model {
	out := Model{
		Fans:      make(map[int]FanView, len(m.Fans)),
		PowerMode: m.PowerMode,
		Events:    append([]Event(nil), m.Events...),
	}
	for id, f := range m.Fans {
		if f.RPM != nil {
			rpm := *f.RPM
			f.RPM = &rpm
		}
		out.Fans[id] = f
	}
	if m.Telemetry != nil {
		t := cloneSnapshot(*m.Telemetry)
		out.Telemetry = &t
	}
	return out
}

func cloneSnapshot(s telemetry.Snapshot) telemetry.Snapshot {
	out := s
	if s.Temperature != nil {
		temp := *s.Temperature
		out.Temperature = &temp
	}
	out.RPM = make(map[int]int, len(s.RPM))
	for fan, rpm := range s.RPM {
		out.RPM[fan] = rpm
	}
	out.HostSensors = append([]telemetry.HostSensor(nil), s.HostSensors...)
	if s.HostLoad != nil {
		load := *s.HostLoad
		out.HostLoad = &load
	}
	return out
}
