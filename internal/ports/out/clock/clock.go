package clock

import "time"

// Clock is the only source of "now" for the core: ride creation times, message
// timestamps and idempotency retention all read it. Tests drive a manual clock.
type Clock interface {
	Now() time.Time
}
