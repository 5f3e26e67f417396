package apperr

import (
	"errors"
	"net/http"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeNotFound              = "NOT_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeAlreadyJoined         = "ALREADY_JOINED"
	CodeNotAPassenger         = "NOT_A_PASSENGER"
	CodeRideFull              = "RIDE_FULL"
	CodeHostCannotJoinOwnRide = "HOST_CANNOT_JOIN_OWN_RIDE"
	CodeEmptyMessage          = "EMPTY_MESSAGE"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Unwrap exposes the domain error the Error was built from, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Invalid builds an INVALID_INPUT error. field may be empty.
func Invalid(message, field, reason string) *Error {
	e := &Error{Status: http.StatusUnprocessableEntity, Code: CodeInvalidInput, Message: message}
	if field != "" {
		e.Details = map[string]any{field: reason}
	}
	return e
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// FromDomain maps domain and repository sentinels to an *Error.
// Errors it does not recognise are returned unchanged.
func FromDomain(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}

	wrap := func(status int, code string) *Error {
		return &Error{Status: status, Code: code, Message: err.Error(), cause: err}
	}
	switch {
	case errors.Is(err, riderepo.ErrNotFound):
		return wrap(http.StatusNotFound, CodeNotFound)
	case errors.Is(err, chatrepo.ErrNotFound):
		return wrap(http.StatusNotFound, CodeNotFound)
	case errors.Is(err, domain.ErrForbidden):
		return wrap(http.StatusForbidden, CodeForbidden)
	case errors.Is(err, domain.ErrAlreadyJoined):
		return wrap(http.StatusConflict, CodeAlreadyJoined)
	case errors.Is(err, domain.ErrNotAPassenger):
		return wrap(http.StatusConflict, CodeNotAPassenger)
	case errors.Is(err, domain.ErrRideFull):
		return wrap(http.StatusConflict, CodeRideFull)
	case errors.Is(err, domain.ErrHostCannotJoinOwnRide):
		return wrap(http.StatusConflict, CodeHostCannotJoinOwnRide)
	case errors.Is(err, domain.ErrEmptyMessage):
		return wrap(http.StatusUnprocessableEntity, CodeEmptyMessage)
	case errors.Is(err, domain.ErrSameParticipant):
		return wrap(http.StatusUnprocessableEntity, CodeInvalidInput)
	}
	return err
}

// CodeOf returns the code of an *Error in err's chain, or "".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
