// Package fan owns the control state of every fan and turns operator
// requests into device writes: curve edits go through the constraint engine
// and the debounced scheduler, mode, level and power mode changes are written
// directly and read back later to see what the firmware adopted.
package fan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/CristiGvl/ecfanctl/internal/clock"
	"github.com/CristiGvl/ecfanctl/internal/curve"
	"github.com/CristiGvl/ecfanctl/internal/debounce"
	"github.com/CristiGvl/ecfanctl/internal/device"
	"github.com/CristiGvl/ecfanctl/internal/readback"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

// writeTimeout bounds a debounced curve write.
const writeTimeout = 5 * time.Second

// Presenter receives display updates. view.Hub implements it.
type Presenter interface {
	Apply(fn func(*view.Model)) bool
	Emit(e view.Event)
}

// Options configures a Controller.
type Options struct {
	Clock       clock.Clock
	WriteDelay  time.Duration
	VerifyDelay time.Duration
	Band        curve.Band
	Logger      *slog.Logger
	Observer    Observer
}

type curveKey struct {
	Fan  int
	Kind curve.Kind
}

func (k curveKey) attribute() string {
	return device.CurveKey(k.Fan, k.Kind.String())
}

// Controller owns the FanState of every configured fan.
type Controller struct {
	store     device.Store
	presenter Presenter
	band      curve.Band
	log       *slog.Logger
	observer  Observer

	writes   *debounce.Scheduler[curveKey, curve.Curve]
	verifier *readback.Verifier
	confirm  map[string]func(actual string)

	fans      []int
	mu        sync.Mutex
	states    map[int]*State
	powerMode PowerMode
}

// NewController creates a controller for the given fan ids.
func NewController(store device.Store, fans []int, presenter Presenter, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Band == (curve.Band{}) {
		opts.Band = curve.DefaultBand
	}

	c := &Controller{
		store:     store,
		presenter: presenter,
		band:      opts.Band,
		log:       opts.Logger.With("component", "fan"),
		observer:  opts.Observer,
		fans:      append([]int(nil), fans...),
		states:    make(map[int]*State, len(fans)),
		confirm:   make(map[string]func(string)),
	}

	c.writes = debounce.New[curveKey, curve.Curve](opts.Clock, opts.WriteDelay, debounce.Hooks[curveKey]{
		Superseded: func(k curveKey) { c.observer.WriteSuperseded(k.attribute()) },
		Discarded:  func(k curveKey) { c.observer.WriteDiscarded(k.attribute()) },
	})
	c.verifier = readback.New(store, c.confirmed, readback.Options{
		Clock:    opts.Clock,
		Delay:    opts.VerifyDelay,
		Logger:   opts.Logger,
		Observer: readbackObserver{c},
	})

	for _, fan := range c.fans {
		fan := fan
		c.confirm[device.ModeKey(fan)] = func(actual string) { c.confirmMode(fan, FanMode(actual)) }
		c.confirm[device.LevelKey(fan)] = func(actual string) { c.confirmLevel(fan, actual) }
	}
	c.confirm[device.PowerModeKey] = func(actual string) { c.confirmPowerMode(PowerMode(actual)) }

	return c
}

// Fans returns the configured fan ids.
func (c *Controller) Fans() []int {
	return append([]int(nil), c.fans...)
}

// Load reads the mode, level and curves of every fan and the power mode.
// Attributes that cannot be read stay unknown; the returned error joins every
// read failure.
func (c *Controller) Load(ctx context.Context) error {
	var errs []error
	for _, fan := range c.fans {
		if err := c.loadFan(ctx, fan); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.loadPowerMode(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Controller) loadFan(ctx context.Context, fan int) error {
	var errs []error

	mode, modeErr := c.readOption(ctx, device.ModeKey(fan), device.FanModes)
	if modeErr != nil {
		errs = append(errs, modeErr)
	}
	level, levelErr := c.readLevel(ctx, fan)
	if levelErr != nil {
		errs = append(errs, levelErr)
	}

	c.mu.Lock()
	st, err := c.stateLocked(fan)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if modeErr == nil {
		st.Mode = FanMode(mode)
	}
	if levelErr == nil {
		st.Level = level
	}
	c.publishLocked(st)
	c.mu.Unlock()

	if err := c.RefreshCurves(ctx, fan); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Controller) loadPowerMode(ctx context.Context) error {
	mode, err := c.readOption(ctx, device.PowerModeKey, device.PowerModes)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerMode = PowerMode(mode)
	c.publishPowerModeLocked()
	return nil
}

// RefreshCurves re-reads both curves of a fan. A curve that cannot be read
// or parsed keeps its previous value, and so does a curve with a debounced
// write still pending.
func (c *Controller) RefreshCurves(ctx context.Context, fan int) error {
	if !c.known(fan) {
		return fmt.Errorf("%w: %d", ErrUnknownFan, fan)
	}

	read := make(map[curve.Kind]curve.Curve, len(curve.Kinds))
	var errs []error
	for _, kind := range curve.Kinds {
		values, err := c.readCurve(ctx, fan, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		read[kind] = values
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.stateLocked(fan)
	if err != nil {
		return err
	}
	for kind, values := range read {
		if c.writes.Pending(curveKey{Fan: fan, Kind: kind}) {
			continue
		}
		st.Curves.Set(kind, values)
	}
	if len(read) == len(curve.Kinds) {
		st.CurvesLoaded = true
	}
	c.publishLocked(st)
	return errors.Join(errs...)
}

// SetMode writes a fan mode and schedules a read-back of it.
func (c *Controller) SetMode(ctx context.Context, fan int, mode FanMode) error {
	if !c.known(fan) {
		return fmt.Errorf("%w: %d", ErrUnknownFan, fan)
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	key := device.ModeKey(fan)
	if err := c.write(ctx, key, string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	st, _ := c.stateLocked(fan)
	st.Mode = mode
	c.publishLocked(st)
	c.mu.Unlock()

	if mode == ModeCurve {
		if err := c.RefreshCurves(ctx, fan); err != nil {
			c.log.Warn("could not read curves after switching to curve mode", "fan", fan, "error", err)
		}
	}

	return c.verify(key, readback.OptionDecoder(device.FanModes...), string(mode))
}

// SetLevel writes the fixed level of a fan and schedules a read-back of it.
func (c *Controller) SetLevel(ctx context.Context, fan, level int) error {
	if !c.known(fan) {
		return fmt.Errorf("%w: %d", ErrUnknownFan, fan)
	}
	if level < device.MinLevel || level > device.MaxLevel {
		return fmt.Errorf("%w: level %d outside %d..%d", ErrInvalidValue, level, device.MinLevel, device.MaxLevel)
	}

	key := device.LevelKey(fan)
	if err := c.write(ctx, key, strconv.Itoa(level)); err != nil {
		return err
	}

	c.mu.Lock()
	st, _ := c.stateLocked(fan)
	st.Level = level
	c.publishLocked(st)
	c.mu.Unlock()

	return c.verify(key, readback.IntDecoder(device.MinLevel, device.MaxLevel), strconv.Itoa(level))
}

// SetPowerMode writes the APU power mode and schedules a read-back of it.
func (c *Controller) SetPowerMode(ctx context.Context, mode PowerMode) error {
	if _, err := ParsePowerMode(string(mode)); err != nil {
		return err
	}

	if err := c.write(ctx, device.PowerModeKey, string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	c.powerMode = mode
	c.publishPowerModeLocked()
	c.mu.Unlock()

	return c.verify(device.PowerModeKey, readback.OptionDecoder(device.PowerModes...), string(mode))
}

// EditCurve moves one point of a curve, cascades the edit through both curves
// of the fan and schedules debounced writes for every curve that changed.
// The value is clamped to the configured band first.
func (c *Controller) EditCurve(fan int, kind curve.Kind, index, value int) (Edit, error) {
	if !c.known(fan) {
		return Edit{}, fmt.Errorf("%w: %d", ErrUnknownFan, fan)
	}
	if kind != curve.RampUp && kind != curve.RampDown {
		return Edit{}, fmt.Errorf("%w: curve kind %d", ErrInvalidValue, int(kind))
	}
	if index < 0 || index >= curve.Points {
		return Edit{}, fmt.Errorf("%w: point %d outside 0..%d", ErrInvalidValue, index, curve.Points-1)
	}
	value = c.band.Clamp(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.stateLocked(fan)
	if err != nil {
		return Edit{}, err
	}
	if !st.CurvesLoaded {
		return Edit{}, fmt.Errorf("fan %d: %w", fan, ErrCurvesUnknown)
	}

	before := st.Curves
	after, touched := curve.Apply(before, kind, index, value)
	edit := Edit{
		Curves:  after,
		Changed: after.Get(kind) != before.Get(kind),
		Touched: touched,
	}
	st.Curves = after
	c.publishLocked(st)

	// Scheduling stays under c.mu so the newest generation of a curve key
	// always carries the newest FanState curve.
	if edit.Changed {
		if err := c.scheduleCurve(fan, kind, after.Get(kind)); err != nil {
			return edit, err
		}
	}
	if edit.Touched {
		if err := c.scheduleCurve(fan, kind.Other(), after.Get(kind.Other())); err != nil {
			return edit, err
		}
	}
	return edit, nil
}

// CurveWritePending reports whether a debounced write of the curve waits.
func (c *Controller) CurveWritePending(fan int, kind curve.Kind) bool {
	return c.writes.Pending(curveKey{Fan: fan, Kind: kind})
}

// State returns a copy of the state of one fan.
func (c *Controller) State(fan int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.stateLocked(fan)
	if err != nil {
		return State{}, err
	}
	return *st, nil
}

// States returns a copy of the state of every fan.
func (c *Controller) States() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, 0, len(c.fans))
	for _, fan := range c.fans {
		st, _ := c.stateLocked(fan)
		out = append(out, *st)
	}
	return out
}

// PowerMode returns the last known power mode.
func (c *Controller) PowerMode() PowerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerMode
}

// Close cancels every pending curve write and read-back. Writes that are
// already running are not waited for.
func (c *Controller) Close() {
	c.writes.Stop()
	c.verifier.Stop()
}

func (c *Controller) scheduleCurve(fan int, kind curve.Kind, values curve.Curve) error {
	key := curveKey{Fan: fan, Kind: kind}
	err := c.writes.Schedule(key, values, func(v curve.Curve) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return c.write(ctx, key.attribute(), device.FormatCurve(v[:]))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s write: %w", key.attribute(), err)
	}
	return nil
}

func (c *Controller) verify(key string, decode readback.Decoder, requested string) error {
	if err := c.verifier.VerifyAfter(key, 0, decode, requested); err != nil {
		return fmt.Errorf("failed to schedule read-back of %s: %w", key, err)
	}
	return nil
}

// write performs a device write and reports failures as events.
func (c *Controller) write(ctx context.Context, key, value string) error {
	err := c.store.Write(ctx, key, value)
	c.observer.WriteDone(key, err)
	if err == nil {
		c.log.Debug("device write", "key", key, "value", value)
		return nil
	}

	c.log.Error("device write failed", "key", key, "value", value, "error", err)
	e := view.NewEvent(view.EventWriteFailed, key)
	e.Requested = value
	e.Error = err.Error()
	c.presenter.Emit(e)
	return fmt.Errorf("%w: %w", ErrDeviceWrite, err)
}

func (c *Controller) readOption(ctx context.Context, key string, options []string) (string, error) {
	raw, err := c.store.Read(ctx, key)
	if err == nil {
		var v string
		if v, err = device.ParseOption(raw, options); err == nil {
			return v, nil
		}
	}
	return "", c.readFailed(key, err)
}

func (c *Controller) readLevel(ctx context.Context, fan int) (int, error) {
	key := device.LevelKey(fan)
	raw, err := c.store.Read(ctx, key)
	if err == nil {
		var v int
		if v, err = device.ParseInt(raw); err == nil {
			return v, nil
		}
	}
	return 0, c.readFailed(key, err)
}

func (c *Controller) readCurve(ctx context.Context, fan int, kind curve.Kind) (curve.Curve, error) {
	key := device.CurveKey(fan, kind.String())
	raw, err := c.store.Read(ctx, key)
	if err == nil {
		var points []int
		if points, err = device.ParseCurve(raw, curve.Points); err == nil {
			var values curve.Curve
			copy(values[:], points)
			return values, nil
		}
	}
	return curve.Curve{}, c.readFailed(key, err)
}

func (c *Controller) readFailed(key string, err error) error {
	c.log.Warn("attribute read failed", "key", key, "error", err)
	c.observer.ReadFailed(key, err)
	return fmt.Errorf("%s: %w", key, err)
}

func (c *Controller) confirmed(r readback.Result) {
	c.observer.Verified(r.Key, r.Accepted())

	if apply, ok := c.confirm[r.Key]; ok {
		apply(r.Actual)
	}

	e := view.NewEvent(view.EventModeConfirmed, r.Key)
	e.Requested = r.Requested
	e.Actual = r.Actual
	e.Accepted = r.Accepted()
	c.presenter.Emit(e)
}

func (c *Controller) confirmMode(fan int, mode FanMode) {
	c.mu.Lock()
	st, _ := c.stateLocked(fan)
	st.Mode = mode
	c.publishLocked(st)
	c.mu.Unlock()

	if mode == ModeCurve {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := c.RefreshCurves(ctx, fan); err != nil {
			c.log.Warn("could not read curves after confirming curve mode", "fan", fan, "error", err)
		}
	}
}

func (c *Controller) confirmLevel(fan int, actual string) {
	level, err := strconv.Atoi(actual)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, _ := c.stateLocked(fan)
	st.Level = level
	c.publishLocked(st)
}

func (c *Controller) confirmPowerMode(mode PowerMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerMode = mode
	c.publishPowerModeLocked()
}

func (c *Controller) known(fan int) bool {
	for _, id := range c.fans {
		if id == fan {
			return true
		}
	}
	return false
}

// stateLocked returns the state of fan, creating it on first use.
func (c *Controller) stateLocked(fan int) (*State, error) {
	if st, ok := c.states[fan]; ok {
		return st, nil
	}
	if !c.known(fan) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFan, fan)
	}
	st := &State{ID: fan}
	c.states[fan] = st
	return st, nil
}

// publishLocked hands a copy of st to the presenter. Called with c.mu held
// so updates reach the presenter in the order they were made.
func (c *Controller) publishLocked(st *State) {
	s := *st
	c.presenter.Apply(func(m *view.Model) {
		m.UpdateFan(s.ID, func(f *view.FanView) {
			f.Mode = string(s.Mode)
			f.Level = s.Level
			f.Curves = s.Curves
			f.CurvesLoaded = s.CurvesLoaded
		})
	})
}

func (c *Controller) publishPowerModeLocked() {
	mode := string(c.powerMode)
	c.presenter.Apply(func(m *view.Model) { m.PowerMode = mode })
}

type readbackObserver struct{ c *Controller }

func (o readbackObserver) ReadbackFailed(key string, err error) {
	o.c.observer.ReadbackFailed(key, err)
	e := view.NewEvent(view.EventReadbackFailed, key)
	e.Error = err.Error()
	o.c.presenter.Emit(e)
}
