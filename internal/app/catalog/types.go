package catalog

// CreateRideInput is what a host supplies when posting a ride.
type CreateRideInput struct {
	Date        string // YYYY-MM-DD
	Time        string // HH:MM
	Vehicle     string
	Pickup      string
	Destination string
	TotalSeats  int
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)
