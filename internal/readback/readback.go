// Package readback re-reads an attribute some time after it was written to
// find out what the hardware actually adopted. Firmware may silently refuse or
// override a requested mode; the verifier reports what it finds.
package readback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CristiGvl/ecfanctl/internal/clock"
	"github.com/CristiGvl/ecfanctl/internal/debounce"
	"github.com/CristiGvl/ecfanctl/internal/device"
)

// DefaultDelay is the settle time before the attribute is read back.
const DefaultDelay = 10 * time.Second

// readTimeout bounds a single read-back.
const readTimeout = 5 * time.Second

// ErrNoData marks a read-back whose content could not be decoded.
var ErrNoData = errors.New("no usable data")

// Decoder turns the raw attribute text into the value compared against the
// request. An error means the attribute carried no usable data.
type Decoder func(raw string) (string, error)

// OptionDecoder decodes a bracket-marked option list.
func OptionDecoder(options ...string) Decoder {
	return func(raw string) (string, error) {
		return device.ParseOption(raw, options)
	}
}

// IntDecoder decodes an integer within [min, max].
func IntDecoder(min, max int) Decoder {
	return func(raw string) (string, error) {
		v, err := device.ParseInt(raw)
		if err != nil {
			return "", err
		}
		if v < min || v > max {
			return "", fmt.Errorf("value %d outside %d..%d", v, min, max)
		}
		return fmt.Sprint(v), nil
	}
}

// Result is what a read-back found.
type Result struct {
	Key       string
	Requested string
	Actual    string
}

// Accepted reports whether the device adopted the requested value.
func (r Result) Accepted() bool {
	return r.Actual == r.Requested
}

// Handler receives read-back results. It runs on a timer goroutine.
type Handler func(Result)

// Observer is notified of read-backs that produced no result.
type Observer interface {
	ReadbackFailed(key string, err error)
}

type request struct {
	decode    Decoder
	requested string
}

// Verifier schedules at most one pending read-back per attribute. A newer
// request for the same attribute replaces the pending one.
type Verifier struct {
	store    device.Store
	handler  Handler
	observer Observer
	delay    time.Duration
	log      *slog.Logger
	pending  *debounce.Scheduler[string, request]
}

// Options configures a Verifier.
type Options struct {
	Clock    clock.Clock
	Delay    time.Duration
	Logger   *slog.Logger
	Observer Observer
}

// New creates a Verifier reading from store and reporting to handler.
func New(store device.Store, handler Handler, opts Options) *Verifier {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	v := &Verifier{
		store:    store,
		handler:  handler,
		observer: opts.Observer,
		delay:    opts.Delay,
		log:      opts.Logger.With("component", "readback"),
	}
	v.pending = debounce.New[string, request](opts.Clock, opts.Delay, debounce.Hooks[string]{
		Superseded: func(key string) {
			v.log.Debug("read-back replaced by newer write", "key", key)
		},
	})
	return v
}

// Delay returns the default settle time.
func (v *Verifier) Delay() time.Duration {
	return v.delay
}

// VerifyAfter reads key back after delay and reports the decoded value.
// A non-positive delay uses the default.
func (v *Verifier) VerifyAfter(key string, delay time.Duration, decode Decoder, requested string) error {
	if delay <= 0 {
		delay = v.delay
	}
	return v.pending.ScheduleAfter(key, delay, request{decode: decode, requested: requested}, func(r request) error {
		v.check(key, r)
		return nil
	})
}

// Pending reports whether a read-back of key is waiting.
func (v *Verifier) Pending(key string) bool {
	return v.pending.Pending(key)
}

// Stop cancels every pending read-back.
func (v *Verifier) Stop() {
	v.pending.Stop()
}

func (v *Verifier) check(key string, r request) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	raw, err := v.store.Read(ctx, key)
	if err != nil {
		v.log.Warn("read-back failed", "key", key, "error", err)
		v.failed(key, err)
		return
	}

	actual, err := r.decode(raw)
	if err != nil {
		v.log.Warn("read-back returned no usable data", "key", key, "raw", raw, "error", err)
		v.failed(key, fmt.Errorf("%w: %v", ErrNoData, err))
		return
	}

	result := Result{Key: key, Requested: r.requested, Actual: actual}
	if !result.Accepted() {
		v.log.Info("device did not adopt requested value", "key", key, "requested", r.requested, "actual", actual)
	}
	v.handler(result)
}

func (v *Verifier) failed(key string, err error) {
	if v.observer != nil {
		v.observer.ReadbackFailed(key, err)
	}
}
