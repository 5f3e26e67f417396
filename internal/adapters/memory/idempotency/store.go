package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	m  map[idempotency.Fingerprint]idempotency.Record

	retention time.Duration
	clock     clock.Clock
}

// NewStore keeps records forever.
func NewStore() *Store {
	return &Store{
		m: make(map[idempotency.Fingerprint]idempotency.Record),
	}
}

// NewStoreWithRetention treats records older than retention as absent and drops them on lookup.
func NewStoreWithRetention(retention time.Duration, clk clock.Clock) *Store {
	s := NewStore()
	s.retention = retention
	s.clock = clk
	return s
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[fp]
	if ok && s.expired(rec) {
		delete(s.m, fp)
		return idempotency.Record{}, false, nil
	}
	return rec, ok, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[fp] = rec
	return nil
}

func (s *Store) Reserve(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[fp]; ok && !s.expired(cur) {
		return cur, false, nil
	}
	s.m[fp] = rec
	return rec, true, nil
}

func (s *Store) Release(ctx context.Context, fp idempotency.Fingerprint) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, fp)
	return nil
}

func (s *Store) expired(rec idempotency.Record) bool {
	if s.retention <= 0 || s.clock == nil || rec.CreatedAt.IsZero() {
		return false
	}
	return rec.CreatedAt.Before(s.clock.Now().Add(-s.retention))
}
