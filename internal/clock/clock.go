// Package clock abstracts the timers used by the scheduler, the verifier and
// the telemetry loop so tests can drive them deterministically.
package clock

import "time"

// Clock is the subset of the time package the controller depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f in its own context once d has elapsed. The returned
	// Timer can cancel the call if it has not started yet.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable one-shot call created by AfterFunc.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing. It returns false if the timer already
// fired or was already stopped. A callback that is already running is not
// interrupted.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stop: timer.Stop}
}
