package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/CristiGvl/ecfanctl/internal/clock"
	"github.com/CristiGvl/ecfanctl/internal/device"
)

const (
	// DefaultInterval is the time between two polls.
	DefaultInterval = time.Second
	// MinInterval is the shortest accepted poll interval.
	MinInterval = 100 * time.Millisecond
)

// Presets are the poll intervals offered to operators.
var Presets = []time.Duration{
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	5 * time.Second,
}

// Observer is notified of every poll outcome.
type Observer interface {
	ReadFailed(key string, err error)
	Polled(Snapshot)
}

// Poller reads telemetry attributes in a loop.
type Poller struct {
	store    device.Store
	fans     []int
	sink     Sink
	host     HostReader
	clock    clock.Clock
	observer Observer
	log      *slog.Logger

	interval atomic.Int64
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	// Host enables host sensor readings when non-nil.
	Host     HostReader
	Clock    clock.Clock
	Observer Observer
	Logger   *slog.Logger
}

// NewPoller creates a poller for the given fans.
func NewPoller(store device.Store, fans []int, sink Sink, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval < MinInterval {
		opts.Interval = DefaultInterval
	}

	p := &Poller{
		store:    store,
		fans:     fans,
		sink:     sink,
		host:     opts.Host,
		clock:    opts.Clock,
		observer: opts.Observer,
		log:      opts.Logger.With("component", "telemetry"),
	}
	p.interval.Store(int64(opts.Interval))
	return p
}

// Interval returns the current poll interval.
func (p *Poller) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// SetInterval changes the poll interval. The running loop picks it up after
// the wait that is already in progress.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < MinInterval {
		return fmt.Errorf("poll interval %s is below the minimum of %s", d, MinInterval)
	}
	p.interval.Store(int64(d))
	p.log.Info("poll interval changed", "interval", d)
	return nil
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("telemetry poller started", "interval", p.Interval(), "fans", p.fans)
	defer p.log.Info("telemetry poller stopped")

	for {
		interval := p.Interval()
		p.Tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-p.clock.After(interval):
		}
	}
}

// Tick performs one poll and publishes the snapshot.
func (p *Poller) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("telemetry tick panicked", "panic", r)
		}
	}()

	snapshot := Snapshot{
		Time: p.clock.Now(),
		RPM:  make(map[int]int, len(p.fans)),
	}

	if temp, ok := p.readInt(ctx, device.TemperatureKey); ok {
		snapshot.Temperature = &temp
	}
	for _, fan := range p.fans {
		if rpm, ok := p.readInt(ctx, device.RPMKey(fan)); ok {
			snapshot.RPM[fan] = rpm
		}
	}

	if p.host != nil {
		sensors, err := p.host.ReadSensors(ctx)
		if err != nil {
			p.log.Debug("host sensors unavailable", "error", err)
		} else {
			snapshot.HostSensors = sensors
		}
		if load, err := p.host.ReadLoad(ctx); err != nil {
			p.log.Debug("host load unavailable", "error", err)
		} else {
			snapshot.HostLoad = &load
		}
	}

	if p.observer != nil {
		p.observer.Polled(snapshot)
	}
	p.sink.PublishTelemetry(snapshot)
}

func (p *Poller) readInt(ctx context.Context, key string) (int, bool) {
	raw, err := p.store.Read(ctx, key)
	if err == nil {
		var v int
		v, err = device.ParseInt(raw)
		if err == nil {
			return v, true
		}
	}

	p.log.Debug("telemetry read skipped", "key", key, "error", err)
	if p.observer != nil {
		p.observer.ReadFailed(key, err)
	}
	return 0, false
}
