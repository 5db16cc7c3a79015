package device

import (
	"context"
	"fmt"
	"sync"
)

// WriteRecord is one successful write seen by a MemStore.
type WriteRecord struct {
	Key   string
	Value string
}

// MemStore is an in-memory Store. Missing keys read as ErrNotFound; keys can
// be made to fail on demand.
type MemStore struct {
	mu     sync.Mutex
	values map[string]string
	fails  map[string]error
	writes []WriteRecord
}

// NewMemStore creates a store preloaded with values.
func NewMemStore(values map[string]string) *MemStore {
	s := &MemStore{
		values: make(map[string]string, len(values)),
		fails:  make(map[string]error),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Read returns the stored value of key.
func (s *MemStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.fails[key]; ok {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("failed to read %s: %w", key, ErrNotFound)
	}
	if v == "" {
		return "", fmt.Errorf("failed to read %s: %w", key, ErrEmpty)
	}
	return v, nil
}

// Write stores value under an existing key.
func (s *MemStore) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.fails[key]; ok {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if _, ok := s.values[key]; !ok {
		return fmt.Errorf("failed to write %s: %w", key, ErrNotFound)
	}
	s.values[key] = value
	s.writes = append(s.writes, WriteRecord{Key: key, Value: value})
	return nil
}

// Set stores a value without recording a write.
func (s *MemStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the stored value and whether it exists.
func (s *MemStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Fail makes every read and write of key return err until Heal is called.
func (s *MemStore) Fail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[key] = err
}

// Heal clears a failure set by Fail.
func (s *MemStore) Heal(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fails, key)
}

// Writes returns every successful write in order.
func (s *MemStore) Writes() []WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteRecord, len(s.writes))
	copy(out, s.writes)
	return out
}

// WritesTo returns the values written to key in order.
func (s *MemStore) WritesTo(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, w := range s.writes {
		if w.Key == key {
			out = append(out, w.Value)
		}
	}
	return out
}
