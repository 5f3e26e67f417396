package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

func TestFromDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     error
		status int
		code   string
	}{
		{riderepo.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{chatrepo.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{domain.ErrAlreadyJoined, http.StatusConflict, CodeAlreadyJoined},
		{domain.ErrNotAPassenger, http.StatusConflict, CodeNotAPassenger},
		{domain.ErrRideFull, http.StatusConflict, CodeRideFull},
		{domain.ErrHostCannotJoinOwnRide, http.StatusConflict, CodeHostCannotJoinOwnRide},
		{domain.ErrEmptyMessage, http.StatusUnprocessableEntity, CodeEmptyMessage},
		{domain.ErrSameParticipant, http.StatusUnprocessableEntity, CodeInvalidInput},
		{fmt.Errorf("join r1: %w", domain.ErrRideFull), http.StatusConflict, CodeRideFull},
	}
	for _, tc := range cases {
		got := FromDomain(tc.in)
		var ae *Error
		if !errors.As(got, &ae) {
			t.Fatalf("FromDomain(%v) = %T, want *Error", tc.in, got)
		}
		if ae.Status != tc.status || ae.Code != tc.code {
			t.Fatalf("FromDomain(%v) = %d/%s, want %d/%s", tc.in, ae.Status, ae.Code, tc.status, tc.code)
		}
		if !errors.Is(got, tc.in) {
			t.Fatalf("FromDomain(%v) lost the cause", tc.in)
		}
	}
}

func TestFromDomain_PassThrough(t *testing.T) {
	t.Parallel()

	if FromDomain(nil) != nil {
		t.Fatalf("FromDomain(nil) != nil")
	}
	other := errors.New("db down")
	if got := FromDomain(other); got != other {
		t.Fatalf("FromDomain(unknown)=%v, want unchanged", got)
	}
	inv := Invalid("invalid totalSeats", "totalSeats", "must be >= 1")
	if got := FromDomain(inv); got != error(inv) {
		t.Fatalf("FromDomain(*Error) should be unchanged")
	}
	if CodeOf(inv) != CodeInvalidInput || inv.Details["totalSeats"] != "must be >= 1" {
		t.Fatalf("Invalid()=%+v", inv)
	}
}
