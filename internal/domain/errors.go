package domain

import "errors"

var (
	// ErrForbidden indicates the requester is not allowed to act on the record
	// (not the host of a ride, not a participant of a conversation).
	ErrForbidden = errors.New("forbidden")

	ErrAlreadyJoined         = errors.New("user already joined this ride")
	ErrNotAPassenger         = errors.New("user is not a passenger of this ride")
	ErrRideFull              = errors.New("ride is full")
	ErrHostCannotJoinOwnRide = errors.New("host cannot join own ride")
	ErrEmptyMessage          = errors.New("message text is empty")
	ErrSameParticipant       = errors.New("conversation requires two distinct users")
)
