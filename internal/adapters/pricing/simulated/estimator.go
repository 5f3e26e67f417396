package simulated

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// Rates parameterizes the simulated fare: BaseFare + miles*PerMile, floored at MinimumFare.
type Rates struct {
	BaseFare    float64
	PerMile     float64
	MinMiles    float64
	MaxMiles    float64
	MinimumFare float64
}

// DefaultRates matches the fares riders saw before real routing existed.
func DefaultRates() Rates {
	return Rates{BaseFare: 3, PerMile: 0.19, MinMiles: 10, MaxMiles: 110}
}

func (r Rates) Validate() error {
	if r.BaseFare < 0 || r.PerMile < 0 || r.MinimumFare < 0 {
		return fmt.Errorf("pricing rates must be non-negative: %+v", r)
	}
	if r.MinMiles < 0 || r.MaxMiles < r.MinMiles {
		return fmt.Errorf("pricing distance range invalid: [%v, %v)", r.MinMiles, r.MaxMiles)
	}
	return nil
}

// Estimator draws a distance uniformly from [MinMiles, MaxMiles) and prices it.
// The locations are not geocoded. It is safe for concurrent use.
type Estimator struct {
	rates Rates

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns an Estimator seeded from the runtime's random source.
func New(rates Rates) (*Estimator, error) {
	return NewSeeded(rates, rand.Uint64(), rand.Uint64())
}

// NewSeeded returns an Estimator with a deterministic sequence.
func NewSeeded(rates Rates, seed1, seed2 uint64) (*Estimator, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{rates: rates, rnd: rand.New(rand.NewPCG(seed1, seed2))}, nil
}

func (e *Estimator) Estimate(ctx context.Context, pickup, destination string) (domain.Fare, error) {
	_ = ctx
	_, _ = pickup, destination

	e.mu.Lock()
	u := e.rnd.Float64()
	e.mu.Unlock()

	miles := e.rates.MinMiles + u*(e.rates.MaxMiles-e.rates.MinMiles)
	return e.rates.Fare(miles), nil
}

// Fare prices a trip of the given length. The price uses the unrounded distance;
// the distance is reported in whole miles and the price in cents.
func (r Rates) Fare(miles float64) domain.Fare {
	price := r.BaseFare + miles*r.PerMile
	if price < r.MinimumFare {
		price = r.MinimumFare
	}
	return domain.Fare{
		Distance: math.Round(miles),
		Price:    math.Round(price*100) / 100,
	}
}
