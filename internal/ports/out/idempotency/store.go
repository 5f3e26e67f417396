package idempotency

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint identifies a request uniquely for idempotency purposes.
//
// Strategy: key + route + user + request body hash.
// Route is represented as HTTP method + path template (e.g. "POST /rides/{rideId}/passengers").
type Fingerprint struct {
	Key      Key
	UserID   domain.UserID
	Method   string
	Route    string
	BodyHash string
}

// Record is the stored response we can replay for a duplicate request.
// A zero StatusCode marks a reservation whose request is still running.
type Record struct {
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Pending reports whether rec is a reservation without a response yet.
func (rec Record) Pending() bool { return rec.StatusCode == 0 }

// Store persists idempotency records for replaying safe responses on retries.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error

	// Reserve stores rec under fp only when no live record exists, atomically.
	// Otherwise the live record is returned with reserved=false; it may be
	// zero if it vanished between the attempt and the lookup.
	Reserve(ctx context.Context, fp Fingerprint, rec Record) (existing Record, reserved bool, err error)

	// Release drops the record under fp. Releasing a missing record is not an error.
	Release(ctx context.Context, fp Fingerprint) error
}
