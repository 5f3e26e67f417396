package clock

import (
	"time"

	clockport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
)

// SystemClock reports UTC wall-clock time truncated to microseconds, the
// resolution postgres keeps for timestamptz. Times handed out by the memory
// and postgres backends then compare the same way after a round trip.
type SystemClock struct{}

var _ clockport.Clock = SystemClock{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
