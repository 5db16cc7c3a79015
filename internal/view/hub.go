package view

import (
	"context"
	"errors"
	"log/slog"

	"github.com/CristiGvl/ecfanctl/internal/clock"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
)

// ErrStopped is returned by Snapshot once the hub is no longer running.
var ErrStopped = errors.New("view hub stopped")

const updateBuffer = 256

// Hub serializes every change to the Model onto the goroutine running Run.
type Hub struct {
	clock   clock.Clock
	log     *slog.Logger
	updates chan func(*Model)
	done    chan struct{}

	// Owned by the Run goroutine.
	model   Model
	subs    map[int]chan Event
	nextSub int
}

// NewHub creates a hub with an empty view for each fan.
func NewHub(fans []int, c clock.Clock, logger *slog.Logger) *Hub {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		clock:   c,
		log:     logger.With("component", "view"),
		updates: make(chan func(*Model), updateBuffer),
		done:    make(chan struct{}),
		model:   Model{Fans: make(map[int]FanView, len(fans))},
		subs:    make(map[int]chan Event),
	}
	for _, fan := range fans {
		h.model.Fans[fan] = FanView{ID: fan}
	}
	return h
}

// Run applies updates until ctx is cancelled, then closes all subscriptions.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for id, ch := range h.subs {
			close(ch)
			delete(h.subs, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-h.updates:
			fn(&h.model)
		}
	}
}

// Apply queues fn to run against the model on the hub goroutine. It returns
// false if the hub has stopped.
func (h *Hub) Apply(fn func(*Model)) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.updates <- fn:
		return true
	case <-h.done:
		return false
	}
}

// Snapshot returns a copy of the model.
func (h *Hub) Snapshot(ctx context.Context) (Model, error) {
	reply := make(chan Model, 1)
	if !h.Apply(func(m *Model) { reply <- m.clone() }) {
		return Model{}, ErrStopped
	}

	select {
	case m := <-reply:
		return m, nil
	case <-h.done:
		return Model{}, ErrStopped
	case <-ctx.Done():
		return Model{}, ctx.Err()
	}
}

// Emit records an event and forwards it to subscribers.
func (h *Hub) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = h.clock.Now()
	}
	h.Apply(func(m *Model) {
		m.addEvent(e)
		h.dispatch(e)
	})
}

// PublishTelemetry implements telemetry.Sink.
func (h *Hub) PublishTelemetry(s telemetry.Snapshot) {
	h.Apply(func(m *Model) {
		m.Telemetry = &s
		for id := range m.Fans {
			rpm, ok := s.RPM[id]
			m.UpdateFan(id, func(f *FanView) {
				if ok {
					f.RPM = &rpm
				} else {
					f.RPM = nil
				}
			})
		}
		if len(h.subs) > 0 {
			e := NewEvent(EventTelemetry, "")
			e.Time = s.Time
			snapshot := cloneSnapshot(s)
			e.Telemetry = &snapshot
			h.dispatch(e)
		}
	})
}

// Subscribe returns a channel receiving every event, including telemetry
// events. Events are dropped when the buffer is full. The returned function
// cancels the subscription.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	idc := make(chan int, 1)
	if !h.Apply(func(*Model) {
		h.nextSub++
		h.subs[h.nextSub] = ch
		idc <- h.nextSub
	}) {
		close(ch)
		return ch, func() {}
	}

	var id int
	select {
	case id = <-idc:
	case <-h.done:
		select {
		case <-idc:
			// Registered before the hub stopped; Run closes it.
		default:
			close(ch)
		}
		return ch, func() {}
	}

	return ch, func() {
		h.Apply(func(*Model) {
			if sub, ok := h.subs[id]; ok {
				close(sub)
				delete(h.subs, id)
			}
		})
	}
}

func (h *Hub) dispatch(e Event) {
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.log.Debug("subscriber lagging, event dropped", "subscriber", id, "kind", e.Kind)
		}
	}
}
