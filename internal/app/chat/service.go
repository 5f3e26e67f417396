package chat

import (
	"context"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/carpool-api/internal/app/apperr"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
)

// Service is the conversation registry: one conversation per unordered user pair.
type Service struct {
	convs chatrepo.Repository
	clock clock.Clock

	newConversationID func() domain.ConversationID
	newMessageID      func() domain.MessageID
}

func NewService(repo chatrepo.Repository, clk clock.Clock) *Service {
	return &Service{
		convs: repo,
		clock: clk,
		newConversationID: func() domain.ConversationID {
			return domain.ConversationID(uuid.NewString())
		},
		newMessageID: func() domain.MessageID {
			return domain.MessageID(uuid.NewString())
		},
	}
}

// SetIDsForTest overrides ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetIDsForTest(conv func() domain.ConversationID, msg func() domain.MessageID) {
	if conv != nil {
		s.newConversationID = conv
	}
	if msg != nil {
		s.newMessageID = msg
	}
}

// GetOrCreate returns the conversation between a and b, creating an empty one if none exists.
// created is true only for the call that stored it.
func (s *Service) GetOrCreate(ctx context.Context, a, b domain.Participant) (domain.Conversation, bool, error) {
	return s.Open(ctx, a, b, "")
}

// Open is GetOrCreate where a newly created conversation starts with opening,
// sent by from. The conversation and its first message are stored together, so
// nobody ever observes one without the other. opening is ignored when the
// conversation already exists.
func (s *Service) Open(ctx context.Context, from, to domain.Participant, opening string) (domain.Conversation, bool, error) {
	if from.UserID == "" || to.UserID == "" {
		return domain.Conversation{}, false, apperr.Invalid("invalid participant", "userId", "must be non-empty")
	}
	if from.UserID == to.UserID {
		return domain.Conversation{}, false, apperr.FromDomain(domain.ErrSameParticipant)
	}
	from.DisplayName = domain.NormalizeHumanName(from.DisplayName)
	to.DisplayName = domain.NormalizeHumanName(to.DisplayName)

	now := s.clock.Now().UTC()
	c := domain.NewConversation(s.newConversationID(), from, to, now)
	if opening = strings.TrimSpace(opening); opening != "" {
		c.Messages = append(c.Messages, domain.Message{
			ID:             s.newMessageID(),
			ConversationID: c.ID,
			SenderID:       from.UserID,
			Text:           opening,
			CreatedAt:      now,
		})
	}
	got, created, err := s.convs.GetOrCreate(ctx, c)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return got, created, nil
}

func (s *Service) Get(ctx context.Context, id domain.ConversationID, requester domain.UserID) (domain.Conversation, error) {
	c, err := s.convs.Get(ctx, id)
	if err != nil {
		return domain.Conversation{}, apperr.FromDomain(err)
	}
	if !c.HasParticipant(requester) {
		return domain.Conversation{}, apperr.FromDomain(domain.ErrForbidden)
	}
	return c, nil
}

// PostMessage appends text from sender. The message time never goes backwards
// within a conversation, even if the clock does.
func (s *Service) PostMessage(ctx context.Context, id domain.ConversationID, sender domain.UserID, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	m, err := s.convs.AppendMessage(ctx, id, func(c domain.Conversation) (domain.Message, error) {
		if !c.HasParticipant(sender) {
			return domain.Message{}, domain.ErrForbidden
		}
		if text == "" {
			return domain.Message{}, domain.ErrEmptyMessage
		}
		at := s.clock.Now().UTC()
		if last, ok := c.LastMessage(); ok && at.Before(last.CreatedAt) {
			at = last.CreatedAt
		}
		return domain.Message{
			ID:             s.newMessageID(),
			ConversationID: c.ID,
			SenderID:       sender,
			Text:           text,
			CreatedAt:      at,
		}, nil
	})
	if err != nil {
		return domain.Message{}, apperr.FromDomain(err)
	}
	return m, nil
}

// Delete removes the conversation and all its messages. Either participant may delete it.
func (s *Service) Delete(ctx context.Context, id domain.ConversationID, requester domain.UserID) error {
	err := s.convs.Delete(ctx, id, func(c domain.Conversation) error {
		if !c.HasParticipant(requester) {
			return domain.ErrForbidden
		}
		return nil
	})
	return apperr.FromDomain(err)
}

// ConversationsFor yields userID's conversations, most recently active first.
func (s *Service) ConversationsFor(ctx context.Context, userID domain.UserID) iter.Seq2[domain.Conversation, error] {
	return func(yield func(domain.Conversation, error) bool) {
		cs, err := s.convs.ListByUser(ctx, userID)
		if err != nil {
			yield(domain.Conversation{}, err)
			return
		}
		for _, c := range cs {
			if !yield(c, nil) {
				return
			}
		}
	}
}
