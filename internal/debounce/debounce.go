// Package debounce coalesces bursts of writes to the same key into a single
// commit after a quiet period.
//
// Every key has its own entry holding a generation counter and the timer of
// the pending commit. Scheduling supersedes the pending commit: the generation
// is bumped and the old timer stopped before the new one is armed. When a
// timer fires it commits only if its generation is still current. Stopping a
// timer is best effort, so the generation check is what actually guarantees
// that a stale payload is never committed.
package debounce

import (
	"errors"
	"sync"
	"time"

	"github.com/CristiGvl/ecfanctl/internal/clock"
)

// DefaultDelay is the quiet period used by Schedule.
const DefaultDelay = 400 * time.Millisecond

// ErrStopped is returned by Schedule after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Hooks observe the lifecycle of scheduled commits. Any of them may be nil.
// They are called outside of the scheduler's locks.
type Hooks[K comparable] struct {
	// Superseded is called when a pending commit is replaced by a newer one.
	Superseded func(key K)
	// Discarded is called when a timer fires for a stale generation.
	Discarded func(key K)
	// Committed is called after a commit returns without error.
	Committed func(key K)
	// Failed is called with the error of a failed commit. Commits are not
	// retried.
	Failed func(key K, err error)
}

// Scheduler debounces commits per key. P is the payload handed to commit.
type Scheduler[K comparable, P any] struct {
	clock clock.Clock
	delay time.Duration
	hooks Hooks[K]

	mu      sync.Mutex
	entries map[K]*entry
	stopped bool
}

type entry struct {
	// mu guards generation and timer.
	mu         sync.Mutex
	generation uint64
	timer      *clock.Timer

	// commitMu serializes commits of the same key.
	commitMu sync.Mutex
}

// New creates a scheduler with the given default quiet period.
func New[K comparable, P any](c clock.Clock, delay time.Duration, hooks Hooks[K]) *Scheduler[K, P] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler[K, P]{
		clock:   c,
		delay:   delay,
		hooks:   hooks,
		entries: make(map[K]*entry),
	}
}

// Delay returns the default quiet period.
func (s *Scheduler[K, P]) Delay() time.Duration {
	return s.delay
}

// Schedule commits payload after the default quiet period unless another
// Schedule for the same key arrives first.
func (s *Scheduler[K, P]) Schedule(key K, payload P, commit func(P) error) error {
	return s.ScheduleAfter(key, s.delay, payload, commit)
}

// ScheduleAfter is Schedule with an explicit quiet period.
func (s *Scheduler[K, P]) ScheduleAfter(key K, delay time.Duration, payload P, commit func(P) error) error {
	e, err := s.entry(key)
	if err != nil {
		return err
	}

	if s.supersede(e, key, delay, payload, commit) && s.hooks.Superseded != nil {
		s.hooks.Superseded(key)
	}
	return nil
}

// supersede bumps the generation of key, cancels the pending timer and arms
// a new one carrying the new generation. It reports whether a pending commit
// was replaced.
func (s *Scheduler[K, P]) supersede(e *entry, key K, delay time.Duration, payload P, commit func(P) error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	generation := e.generation

	superseded := false
	if e.timer != nil {
		superseded = e.timer.Stop()
		e.timer = nil
	}

	e.timer = s.clock.AfterFunc(delay, func() {
		s.fire(e, key, generation, payload, commit)
	})
	return superseded
}

func (s *Scheduler[K, P]) fire(e *entry, key K, generation uint64, payload P, commit func(P) error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if !s.tryCommit(e, generation) {
		if s.hooks.Discarded != nil {
			s.hooks.Discarded(key)
		}
		return
	}

	if err := commit(payload); err != nil {
		if s.hooks.Failed != nil {
			s.hooks.Failed(key, err)
		}
		return
	}
	if s.hooks.Committed != nil {
		s.hooks.Committed(key)
	}
}

// tryCommit claims the pending commit if generation is still current.
func (s *Scheduler[K, P]) tryCommit(e *entry, generation uint64) bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if stopped || e.generation != generation {
		return false
	}
	e.timer = nil
	return true
}

func (s *Scheduler[K, P]) entry(key K) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e, nil
}

// Pending reports whether key has a commit waiting for its quiet period.
func (s *Scheduler[K, P]) Pending(key K) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

// Generation returns the number of times key has been scheduled.
func (s *Scheduler[K, P]) Generation(key K) uint64 {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Stop cancels every pending commit and rejects further schedules. Commits
// that are already running are allowed to finish.
func (s *Scheduler[K, P]) Stop() {
	s.mu.Lock()
	s.stopped = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.generation++
		e.mu.Unlock()
	}
}
