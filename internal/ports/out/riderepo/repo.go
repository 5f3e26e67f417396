package riderepo

import (
	"context"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// MutateFunc changes a ride inside its critical section.
// Returning an error aborts the mutation and leaves the stored ride unchanged.
type MutateFunc func(r *domain.Ride) error

// CheckFunc inspects a ride inside its critical section before it is deleted.
// Returning an error aborts the deletion.
type CheckFunc func(r domain.Ride) error

// Repository provides access to posted rides.
//
// Concurrency expectations:
//   - Update and Delete on the same ride ID are serialized; fn observes the latest committed state.
//   - Update and Delete on different ride IDs do not block each other.
//   - Reads return per-record snapshots and never observe a half-applied mutation.
//
// Result ordering expectations:
//   - List returns rides ordered by Schedule (date, time) ascending, ties by insertion order.
type Repository interface {
	Create(ctx context.Context, r domain.Ride) error
	Get(ctx context.Context, id domain.RideID) (domain.Ride, error)

	// Update runs fn against the current ride and persists the result when fn returns nil.
	Update(ctx context.Context, id domain.RideID, fn MutateFunc) (domain.Ride, error)

	// Delete removes the ride when check (if non-nil) returns nil.
	Delete(ctx context.Context, id domain.RideID, check CheckFunc) (domain.Ride, error)

	List(ctx context.Context) ([]domain.Ride, error)
}
