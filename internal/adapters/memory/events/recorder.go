package events

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/events"
)

// Recorder keeps published events in memory. It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	evs []events.Event
	err error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(ctx context.Context, ev events.Event) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.evs = append(r.evs, ev)
	return nil
}

// FailWith makes subsequent Publish calls return err. nil restores normal behavior.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

// Types returns the published event types in order.
func (r *Recorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.evs))
	for _, ev := range r.evs {
		out = append(out, ev.Type)
	}
	return out
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, events.Event) error { return nil }
