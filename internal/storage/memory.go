package storage

import (
	"context"
	"sync"
	"time"

	"github.com/speedwagon-io/motordiag/internal/model"
)

const defaultMemoryCapacity = 1000

// MemoryStore keeps the most recent readings in a bounded slice. It loses
// everything on restart and is meant for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	buffer   []*model.Reading
	capacity int
	seq      int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{
		buffer:   make([]*model.Reading, 0, capacity),
		capacity: capacity,
	}
}

func (s *MemoryStore) Insert(_ context.Context, r *model.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	r.Seq = s.seq

	if len(s.buffer) >= s.capacity {
		s.buffer = s.buffer[1:]
	}
	stored := *r
	s.buffer = append(s.buffer, &stored)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (*model.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.buffer) == 0 {
		return nil, nil
	}
	latest := *s.buffer[len(s.buffer)-1]
	return &latest, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.buffer)), nil
}

func (s *MemoryStore) Prune(_ context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) <= 1 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	last := len(s.buffer) - 1
	kept := make([]*model.Reading, 0, len(s.buffer))
	for i, r := range s.buffer {
		if i == last || !r.ReceivedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	pruned := int64(len(s.buffer) - len(kept))
	s.buffer = kept
	return pruned, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
