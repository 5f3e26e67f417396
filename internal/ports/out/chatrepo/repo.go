package chatrepo

import (
	"context"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// ComposeFunc builds the next message of a conversation inside its critical section.
// It receives the conversation including its full message history.
type ComposeFunc func(c domain.Conversation) (domain.Message, error)

// Repository stores two-party conversations and their messages.
//
// Concurrency expectations:
//   - GetOrCreate is serialized per unordered pair: at most one conversation ever exists per Pair.
//     Messages carried by c are stored with it in the same step, or not at all.
//   - AppendMessage is serialized per conversation, so fn sees the latest message.
//
// Result ordering expectations:
//   - Messages are returned in insertion order.
//   - ListByUser returns conversations ordered by last activity descending, ties by ID.
type Repository interface {
	// GetOrCreate returns the conversation for c.Pair, storing c (with its opening
	// messages) when none exists. created reports whether c was stored; when it is
	// false the opening messages of c are discarded.
	GetOrCreate(ctx context.Context, c domain.Conversation) (conv domain.Conversation, created bool, err error)

	Get(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)

	AppendMessage(ctx context.Context, id domain.ConversationID, fn ComposeFunc) (domain.Message, error)

	// Delete removes the conversation and its messages when check (if non-nil) returns nil.
	Delete(ctx context.Context, id domain.ConversationID, check func(domain.Conversation) error) error

	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error)
}
