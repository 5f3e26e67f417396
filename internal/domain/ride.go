package domain

import (
	"fmt"
	"time"
)

// Schedule is the departure slot of a ride.
// Date is "YYYY-MM-DD" and Time is "HH:MM"; both compare correctly as strings.
type Schedule struct {
	Date string
	Time string
}

// Before orders schedules by (date, time).
func (s Schedule) Before(o Schedule) bool {
	if s.Date != o.Date {
		return s.Date < o.Date
	}
	return s.Time < o.Time
}

// Fare is the price estimate frozen into a ride at creation time.
type Fare struct {
	Distance float64 // miles
	Price    float64
}

// PassengerRef is a weak reference to a rider: id plus a display-name snapshot.
type PassengerRef struct {
	UserID      UserID
	DisplayName string
}

// Ride is a posted trip offering a fixed number of seats.
//
// AvailableSeats and Passengers are changed only through Join, Leave and RemovePassenger.
type Ride struct {
	ID       RideID
	HostID   UserID
	HostName string

	Schedule    Schedule
	Vehicle     string
	Pickup      string
	Destination string

	TotalSeats     int
	AvailableSeats int
	Passengers     []PassengerRef

	Fare Fare

	CreatedAt time.Time
}

// Clone returns a deep copy of the ride.
func (r Ride) Clone() Ride {
	cp := r
	if r.Passengers != nil {
		cp.Passengers = append([]PassengerRef(nil), r.Passengers...)
	}
	return cp
}

// IsFull reports whether no seats remain.
func (r Ride) IsFull() bool { return r.AvailableSeats == 0 }

// HasPassenger reports whether userID currently holds a seat.
func (r Ride) HasPassenger(userID UserID) bool {
	return r.passengerIndex(userID) >= 0
}

func (r Ride) passengerIndex(userID UserID) int {
	for i, p := range r.Passengers {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// Join allocates one seat to p.
func (r *Ride) Join(p PassengerRef) error {
	r.mustHoldSeatInvariant()
	if p.UserID == r.HostID {
		return ErrHostCannotJoinOwnRide
	}
	if r.HasPassenger(p.UserID) {
		return ErrAlreadyJoined
	}
	if r.AvailableSeats == 0 {
		return ErrRideFull
	}
	r.AvailableSeats--
	r.Passengers = append(r.Passengers, p)
	r.mustHoldSeatInvariant()
	return nil
}

// Leave gives userID's seat back.
func (r *Ride) Leave(userID UserID) error {
	r.mustHoldSeatInvariant()
	i := r.passengerIndex(userID)
	if i < 0 {
		return ErrNotAPassenger
	}
	r.Passengers = append(r.Passengers[:i:i], r.Passengers[i+1:]...)
	r.AvailableSeats++
	r.mustHoldSeatInvariant()
	return nil
}

// RemovePassenger lets the host take a seat away from target.
func (r *Ride) RemovePassenger(requester, target UserID) error {
	if requester != r.HostID {
		return ErrForbidden
	}
	return r.Leave(target)
}

// CheckSeatInvariant verifies seat accounting and passenger uniqueness.
func (r Ride) CheckSeatInvariant() error {
	if r.TotalSeats < 1 {
		return fmt.Errorf("ride %s: totalSeats=%d", r.ID, r.TotalSeats)
	}
	if r.AvailableSeats < 0 || r.AvailableSeats > r.TotalSeats {
		return fmt.Errorf("ride %s: availableSeats=%d out of [0,%d]", r.ID, r.AvailableSeats, r.TotalSeats)
	}
	if r.AvailableSeats+len(r.Passengers) != r.TotalSeats {
		return fmt.Errorf("ride %s: availableSeats=%d + passengers=%d != totalSeats=%d",
			r.ID, r.AvailableSeats, len(r.Passengers), r.TotalSeats)
	}
	seen := make(map[UserID]struct{}, len(r.Passengers))
	for _, p := range r.Passengers {
		if _, dup := seen[p.UserID]; dup {
			return fmt.Errorf("ride %s: duplicate passenger %s", r.ID, p.UserID)
		}
		seen[p.UserID] = struct{}{}
	}
	return nil
}

// A broken seat invariant is a programming defect; abort the operation loudly.
func (r Ride) mustHoldSeatInvariant() {
	if err := r.CheckSeatInvariant(); err != nil {
		panic("seat invariant violated: " + err.Error())
	}
}

// RideFilter selects rides in catalog queries. Empty fields impose no constraint.
type RideFilter struct {
	Date        string // exact match
	Pickup      string // case-insensitive substring
	Destination string // case-insensitive substring
}

// Matches reports whether r satisfies every set option of f.
func (f RideFilter) Matches(r Ride) bool {
	if f.Date != "" && r.Schedule.Date != f.Date {
		return false
	}
	return ContainsFold(r.Pickup, f.Pickup) && ContainsFold(r.Destination, f.Destination)
}
