package riderepo

import (
	"context"
	"sort"
	"sync"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/keylock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

type record struct {
	ride domain.Ride
	seq  uint64 // insertion order, used as the sort tie-breaker
}

// Repo is an in-memory implementation of riderepo.Repository.
// It is safe for concurrent use.
//
// mu guards the id->record arena and is only held for map reads/writes.
// Mutations of one ride are serialized by a per-ride lock from rideLocks.
type Repo struct {
	mu      sync.RWMutex
	byID    map[domain.RideID]record
	nextSeq uint64

	rideLocks *keylock.Locker[domain.RideID]
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.RideID]record),
		rideLocks: keylock.New[domain.RideID](),
	}
}

func (r *Repo) Create(ctx context.Context, ride domain.Ride) error {
	_ = ctx
	if ride.ID == "" {
		return riderepo.ErrAlreadyExists // treat empty ID as invalid for now
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ride.ID]; ok {
		return riderepo.ErrAlreadyExists
	}
	r.nextSeq++
	r.byID[ride.ID] = record{ride: ride.Clone(), seq: r.nextSeq}
	return nil
}

func (r *Repo) Get(ctx context.Context, id domain.RideID) (domain.Ride, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return domain.Ride{}, riderepo.ErrNotFound
	}
	return rec.ride.Clone(), nil
}

func (r *Repo) Update(ctx context.Context, id domain.RideID, fn riderepo.MutateFunc) (domain.Ride, error) {
	_ = ctx
	unlock := r.rideLocks.Lock(id)
	defer unlock()

	r.mu.RLock()
	rec, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Ride{}, riderepo.ErrNotFound
	}

	next := rec.ride.Clone()
	if err := fn(&next); err != nil {
		return domain.Ride{}, err
	}

	// Deletion also takes the ride lock, so the record is still present here.
	r.mu.Lock()
	r.byID[id] = record{ride: next.Clone(), seq: rec.seq}
	r.mu.Unlock()
	return next, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.RideID, check riderepo.CheckFunc) (domain.Ride, error) {
	_ = ctx
	unlock := r.rideLocks.Lock(id)
	defer unlock()

	r.mu.RLock()
	rec, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Ride{}, riderepo.ErrNotFound
	}
	if check != nil {
		if err := check(rec.ride.Clone()); err != nil {
			return domain.Ride{}, err
		}
	}

	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
	return rec.ride.Clone(), nil
}

func (r *Repo) List(ctx context.Context) ([]domain.Ride, error) {
	_ = ctx
	r.mu.RLock()
	recs := make([]record, 0, len(r.byID))
	for _, rec := range r.byID {
		recs = append(recs, record{ride: rec.ride.Clone(), seq: rec.seq})
	}
	r.mu.RUnlock()

	sortRecords(recs)
	out := make([]domain.Ride, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ride)
	}
	return out, nil
}

func sortRecords(recs []record) {
	// Sorting rule: by schedule (date, time) ascending; ties by insertion order.
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.ride.Schedule != b.ride.Schedule {
			return a.ride.Schedule.Before(b.ride.Schedule)
		}
		return a.seq < b.seq
	})
}
