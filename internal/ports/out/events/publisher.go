package events

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

type Type string

const (
	RideCreated          Type = "ride.created"
	RideJoined           Type = "ride.joined"
	RideLeft             Type = "ride.left"
	RidePassengerRemoved Type = "ride.passenger_removed"
	RideDeleted          Type = "ride.deleted"
	RideCompleted        Type = "ride.completed"
	ConversationCreated  Type = "conversation.created"
	MessagePosted        Type = "message.posted"
)

// Event describes a committed booking or chat state change.
// Fields that do not apply to the event type are left empty.
type Event struct {
	Type       Type
	RideID     domain.RideID
	ConvID     domain.ConversationID
	MessageID  domain.MessageID
	ActorID    domain.UserID
	SubjectID  domain.UserID // the user acted upon, e.g. the removed passenger
	OccurredAt time.Time
}

// Publisher hands events to downstream consumers.
// Publish is called after the state change is committed; it never undoes it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
