package catalog

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/carpool-api/internal/app/apperr"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/pricing"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

type Service struct {
	rides   riderepo.Repository
	pricing pricing.Estimator
	clock   clock.Clock

	newRideID func() domain.RideID
}

func NewService(ridesRepo riderepo.Repository, estimator pricing.Estimator, clk clock.Clock) *Service {
	return &Service{
		rides:   ridesRepo,
		pricing: estimator,
		clock:   clk,
		newRideID: func() domain.RideID {
			return domain.RideID(uuid.NewString())
		},
	}
}

// SetNewRideIDForTest overrides ride ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewRideIDForTest(fn func() domain.RideID) {
	if fn != nil {
		s.newRideID = fn
	}
}

func (s *Service) CreateRide(ctx context.Context, host domain.Identity, in CreateRideInput) (domain.Ride, error) {
	if host.UserID == "" {
		return domain.Ride{}, apperr.Invalid("invalid host", "hostId", "must be non-empty")
	}
	date := strings.TrimSpace(in.Date)
	tm := strings.TrimSpace(in.Time)
	vehicle := domain.NormalizeHumanName(in.Vehicle)
	pickup := domain.NormalizeHumanName(in.Pickup)
	destination := domain.NormalizeHumanName(in.Destination)

	if in.TotalSeats < 1 {
		return domain.Ride{}, apperr.Invalid("invalid totalSeats", "totalSeats", "must be >= 1")
	}
	if date == "" {
		return domain.Ride{}, apperr.Invalid("invalid date", "date", "must be non-empty")
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return domain.Ride{}, apperr.Invalid("invalid date", "date", "must be YYYY-MM-DD")
	}
	if tm == "" {
		return domain.Ride{}, apperr.Invalid("invalid time", "time", "must be non-empty")
	}
	if _, err := time.Parse(timeLayout, tm); err != nil {
		return domain.Ride{}, apperr.Invalid("invalid time", "time", "must be HH:MM")
	}
	for _, f := range []struct{ name, v string }{
		{"vehicle", vehicle},
		{"pickup", pickup},
		{"destination", destination},
	} {
		if f.v == "" {
			return domain.Ride{}, apperr.Invalid("invalid "+f.name, f.name, "must be non-empty")
		}
	}

	fare, err := s.pricing.Estimate(ctx, pickup, destination)
	if err != nil {
		return domain.Ride{}, fmt.Errorf("estimate fare: %w", err)
	}
	if fare.Distance < 0 || fare.Price < 0 {
		return domain.Ride{}, fmt.Errorf("estimate fare: negative estimate %+v", fare)
	}

	r := domain.Ride{
		ID:             s.newRideID(),
		HostID:         host.UserID,
		HostName:       domain.NormalizeHumanName(host.DisplayName),
		Schedule:       domain.Schedule{Date: date, Time: tm},
		Vehicle:        vehicle,
		Pickup:         pickup,
		Destination:    destination,
		TotalSeats:     in.TotalSeats,
		AvailableSeats: in.TotalSeats,
		Passengers:     []domain.PassengerRef{},
		Fare:           fare,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := r.CheckSeatInvariant(); err != nil {
		panic("new ride: " + err.Error())
	}
	if err := s.rides.Create(ctx, r); err != nil {
		return domain.Ride{}, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id domain.RideID) (domain.Ride, error) {
	r, err := s.rides.Get(ctx, id)
	if err != nil {
		return domain.Ride{}, apperr.FromDomain(err)
	}
	return r, nil
}

// Find yields rides matching f in (date, time) order. Each range over the
// returned sequence reads the store again. Blank options are unset; location
// options are matched as written.
func (s *Service) Find(ctx context.Context, f domain.RideFilter) iter.Seq2[domain.Ride, error] {
	f.Date = strings.TrimSpace(f.Date)
	if strings.TrimSpace(f.Pickup) == "" {
		f.Pickup = ""
	}
	if strings.TrimSpace(f.Destination) == "" {
		f.Destination = ""
	}
	return s.scan(ctx, f.Matches)
}

func (s *Service) RidesHostedBy(ctx context.Context, userID domain.UserID) iter.Seq2[domain.Ride, error] {
	return s.scan(ctx, func(r domain.Ride) bool { return r.HostID == userID })
}

func (s *Service) RidesJoinedBy(ctx context.Context, userID domain.UserID) iter.Seq2[domain.Ride, error] {
	return s.scan(ctx, func(r domain.Ride) bool { return r.HasPassenger(userID) })
}

func (s *Service) scan(ctx context.Context, keep func(domain.Ride) bool) iter.Seq2[domain.Ride, error] {
	return func(yield func(domain.Ride, error) bool) {
		rides, err := s.rides.List(ctx)
		if err != nil {
			yield(domain.Ride{}, err)
			return
		}
		for _, r := range rides {
			if !keep(r) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Mutate runs fn inside the ride's critical section. Seat changes go through here.
func (s *Service) Mutate(ctx context.Context, id domain.RideID, fn riderepo.MutateFunc) (domain.Ride, error) {
	r, err := s.rides.Update(ctx, id, fn)
	if err != nil {
		return domain.Ride{}, apperr.FromDomain(err)
	}
	return r, nil
}

// Remove deletes the ride. Only its host may do so.
func (s *Service) Remove(ctx context.Context, id domain.RideID, requester domain.UserID) error {
	_, err := s.rides.Delete(ctx, id, func(r domain.Ride) error {
		if r.HostID != requester {
			return domain.ErrForbidden
		}
		return nil
	})
	return apperr.FromDomain(err)
}
