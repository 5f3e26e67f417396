package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Overland-East-Bay/carpool-api/internal/app/catalog"
	"github.com/Overland-East-Bay/carpool-api/internal/app/chat"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/events"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

// Coordinator is the entry point for ride bookings. It ties seat changes on the
// catalog to the rider/host conversation and announces committed changes.
type Coordinator struct {
	catalog *catalog.Service
	chat    *chat.Service
	events  events.Publisher
	clock   clock.Clock
	log     *slog.Logger
}

func NewCoordinator(cat *catalog.Service, convs *chat.Service, pub events.Publisher, clk clock.Clock, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{catalog: cat, chat: convs, events: pub, clock: clk, log: log}
}

func (c *Coordinator) CreateRide(ctx context.Context, host domain.Identity, in catalog.CreateRideInput) (domain.Ride, error) {
	r, err := c.catalog.CreateRide(ctx, host, in)
	if err != nil {
		return domain.Ride{}, err
	}
	c.publish(ctx, events.Event{Type: events.RideCreated, RideID: r.ID, ActorID: host.UserID})
	return r, nil
}

// JoinRide books a seat for rider and returns the rider/host conversation.
// A newly created conversation carries the rider's greeting; it is stored
// together with the conversation. If the conversation cannot be set up, the
// seat is given back.
func (c *Coordinator) JoinRide(ctx context.Context, rideID domain.RideID, rider domain.Identity) (domain.Conversation, error) {
	ride, err := c.catalog.Mutate(ctx, rideID, func(r *domain.Ride) error {
		return r.Join(domain.PassengerRef{UserID: rider.UserID, DisplayName: domain.NormalizeHumanName(rider.DisplayName)})
	})
	if err != nil {
		return domain.Conversation{}, err
	}

	conv, created, err := c.chat.Open(ctx,
		domain.Participant{UserID: rider.UserID, DisplayName: rider.DisplayName},
		domain.Participant{UserID: ride.HostID, DisplayName: ride.HostName},
		Greeting(ride),
	)
	if err != nil {
		c.releaseSeat(ctx, ride, rider.UserID)
		return domain.Conversation{}, fmt.Errorf("open conversation: %w", err)
	}

	c.publish(ctx, events.Event{Type: events.RideJoined, RideID: ride.ID, ActorID: rider.UserID})
	if created {
		c.publish(ctx, events.Event{Type: events.ConversationCreated, RideID: ride.ID, ConvID: conv.ID, ActorID: rider.UserID, SubjectID: ride.HostID})
		if greeting, ok := conv.LastMessage(); ok {
			c.publish(ctx, events.Event{Type: events.MessagePosted, ConvID: conv.ID, MessageID: greeting.ID, ActorID: rider.UserID})
		}
	}
	return conv, nil
}

// Greeting is the first message a rider sends to the host of a ride they joined.
func Greeting(r domain.Ride) string {
	return fmt.Sprintf("Hi! I just joined your ride from %s to %s on %s.", r.Pickup, r.Destination, r.Schedule.Date)
}

// releaseSeat undoes a join whose conversation could not be opened.
// Conversations are never touched here: one that exists may already be in use
// by another join of the same pair. It runs even if ctx was canceled.
func (c *Coordinator) releaseSeat(ctx context.Context, ride domain.Ride, riderID domain.UserID) {
	ctx = context.WithoutCancel(ctx)
	log := c.log.With("rideId", ride.ID, "userId", riderID)

	_, err := c.catalog.Mutate(ctx, ride.ID, func(r *domain.Ride) error {
		return r.Leave(riderID)
	})
	switch {
	case err == nil:
		log.Warn("join rolled back")
	case errors.Is(err, domain.ErrNotAPassenger), errors.Is(err, riderepo.ErrNotFound):
		// Someone else already released the seat or removed the ride.
		log.Info("join rollback skipped", "reason", err.Error())
	default:
		log.Error("join rollback failed", "err", err)
	}
}

// LeaveRide gives userID's seat back. The conversation with the host is kept.
func (c *Coordinator) LeaveRide(ctx context.Context, rideID domain.RideID, userID domain.UserID) error {
	if _, err := c.catalog.Mutate(ctx, rideID, func(r *domain.Ride) error {
		return r.Leave(userID)
	}); err != nil {
		return err
	}
	c.publish(ctx, events.Event{Type: events.RideLeft, RideID: rideID, ActorID: userID})
	return nil
}

func (c *Coordinator) RemovePassenger(ctx context.Context, rideID domain.RideID, requester, target domain.UserID) error {
	if _, err := c.catalog.Mutate(ctx, rideID, func(r *domain.Ride) error {
		return r.RemovePassenger(requester, target)
	}); err != nil {
		return err
	}
	c.publish(ctx, events.Event{Type: events.RidePassengerRemoved, RideID: rideID, ActorID: requester, SubjectID: target})
	return nil
}

// DeleteRide cancels a ride. Only the host may do so.
func (c *Coordinator) DeleteRide(ctx context.Context, rideID domain.RideID, requester domain.UserID) error {
	if err := c.catalog.Remove(ctx, rideID, requester); err != nil {
		return err
	}
	c.publish(ctx, events.Event{Type: events.RideDeleted, RideID: rideID, ActorID: requester})
	return nil
}

// CompleteRide marks a ride as done. Completed rides are not kept.
func (c *Coordinator) CompleteRide(ctx context.Context, rideID domain.RideID, requester domain.UserID) error {
	if err := c.catalog.Remove(ctx, rideID, requester); err != nil {
		return err
	}
	c.publish(ctx, events.Event{Type: events.RideCompleted, RideID: rideID, ActorID: requester})
	return nil
}

// PostMessage forwards to the conversation registry and announces the message.
func (c *Coordinator) PostMessage(ctx context.Context, convID domain.ConversationID, sender domain.UserID, text string) (domain.Message, error) {
	m, err := c.chat.PostMessage(ctx, convID, sender, text)
	if err != nil {
		return domain.Message{}, err
	}
	c.publish(ctx, events.Event{Type: events.MessagePosted, ConvID: convID, MessageID: m.ID, ActorID: sender})
	return m, nil
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if c.events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = c.clock.Now().UTC()
	}
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warn("event publish failed", "type", string(ev.Type), "rideId", ev.RideID, "err", err)
	}
}
