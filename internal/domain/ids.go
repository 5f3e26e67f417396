package domain

// UserID is the authenticated subject supplied by the identity collaborator (JWT "sub").
// We model it as an opaque identifier: its format is controlled by the IdP.
type UserID string

// RideID is an internal identifier for a posted ride.
type RideID string

// ConversationID is an internal identifier for a two-party conversation.
type ConversationID string

// MessageID is an internal identifier for a single chat message.
type MessageID string
