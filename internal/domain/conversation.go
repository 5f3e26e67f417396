package domain

import "time"

// Participant is one side of a conversation: id plus a display-name snapshot.
type Participant struct {
	UserID      UserID
	DisplayName string
}

// PairKey identifies an unordered pair of users. Lo <= Hi always holds.
type PairKey struct {
	Lo UserID
	Hi UserID
}

// NewPairKey normalizes (a, b) and (b, a) to the same key.
func NewPairKey(a, b UserID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

func (k PairKey) String() string { return string(k.Lo) + "|" + string(k.Hi) }

// Conversation is a two-party message thread. Messages are append-only and in chronological order.
type Conversation struct {
	ID           ConversationID
	Pair         PairKey
	Participants [2]Participant // ordered like Pair: [0] is Lo, [1] is Hi

	Messages []Message

	CreatedAt time.Time
}

// NewConversation builds an empty conversation between a and b with normalized participant order.
func NewConversation(id ConversationID, a, b Participant, now time.Time) Conversation {
	if b.UserID < a.UserID {
		a, b = b, a
	}
	return Conversation{
		ID:           id,
		Pair:         PairKey{Lo: a.UserID, Hi: b.UserID},
		Participants: [2]Participant{a, b},
		Messages:     []Message{},
		CreatedAt:    now,
	}
}

func (c Conversation) Clone() Conversation {
	cp := c
	if c.Messages != nil {
		cp.Messages = append([]Message(nil), c.Messages...)
	}
	return cp
}

// HasParticipant reports whether userID is one of the two parties.
func (c Conversation) HasParticipant(userID UserID) bool {
	return c.Pair.Lo == userID || c.Pair.Hi == userID
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID UserID) Participant {
	if c.Participants[0].UserID == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// LastMessage returns the newest message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// LastActivity is the newest message time, or the creation time for an empty conversation.
func (c Conversation) LastActivity() time.Time {
	if m, ok := c.LastMessage(); ok {
		return m.CreatedAt
	}
	return c.CreatedAt
}

// Message is a single chat line.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Text           string
	CreatedAt      time.Time
}
