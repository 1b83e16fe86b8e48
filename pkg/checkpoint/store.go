package checkpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/wikipurge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrInvalidEntry indicates a stored checkpoint could not be decoded.
var ErrInvalidEntry = errors.New("invalid checkpoint entry")

var checkpointErrors = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
	Name: "wiki_checkpoint_errors_total",
	Help: "Total checkpoint store failures by operation",
}, []string{"operation"})

// Store persists one cursor per key.
type Store interface {
	// Load returns the saved cursor, or false if none is saved.
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, cursor string) error
	Delete(ctx context.Context, key string) error
}

// Nop discards checkpoints.
type Nop struct{}

// Load implements Store.
func (Nop) Load(context.Context, string) (string, bool, error) { return "", false, nil }

// Save implements Store.
func (Nop) Save(context.Context, string, string) error { return nil }

// Delete implements Store.
func (Nop) Delete(context.Context, string) error { return nil }

// MemoryStore keeps checkpoints in memory.
type MemoryStore struct {
	mu      sync.Mutex
	cursors map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]string)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor, ok := s.cursors[key]
	return cursor, ok, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[key] = cursor
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, key)
	return nil
}
