package pricing

import (
	"context"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// Estimator prices a trip between two free-text locations.
//
// From the core's point of view it is a pure function of its inputs; implementations may
// be randomized or call an external service. Distance and price are never negative.
type Estimator interface {
	Estimate(ctx context.Context, pickup, destination string) (domain.Fare, error)
}
