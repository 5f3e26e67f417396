package httpapi

import (
	"context"
	"net/http"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Overland-East-Bay/carpool-api/internal/app/apperr"
	"github.com/Overland-East-Bay/carpool-api/internal/app/catalog"
	"github.com/Overland-East-Bay/carpool-api/internal/app/seq"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// ListRidesParams are the optional filters of GET /rides.
type ListRidesParams struct {
	Date        *openapi_types.Date
	Pickup      *string
	Destination *string
}

func (s *Server) CreateRide(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body CreateRideRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}

	ride, err := s.Booking.CreateRide(r.Context(), me, catalog.CreateRideInput{
		Date:        body.Date,
		Time:        body.Time,
		Vehicle:     body.Vehicle,
		Pickup:      body.Pickup,
		Destination: body.Destination,
		TotalSeats:  body.TotalSeats,
	})
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, RideResponse{Ride: toRide(ride)})
}

func (s *Server) ListRides(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(w, r); !ok {
		return
	}

	var params ListRidesParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "date", q, &params.Date); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "invalid query parameter", map[string]any{"date": "must be YYYY-MM-DD"})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "pickup", q, &params.Pickup); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "invalid query parameter", map[string]any{"pickup": err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "destination", q, &params.Destination); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "invalid query parameter", map[string]any{"destination": err.Error()})
		return
	}

	var f domain.RideFilter
	if params.Date != nil {
		f.Date = params.Date.Format(openapi_types.DateFormat)
	}
	if params.Pickup != nil {
		f.Pickup = *params.Pickup
	}
	if params.Destination != nil {
		f.Destination = *params.Destination
	}

	rides, err := seq.Collect(s.Rides.Find(r.Context(), f))
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RideListResponse{Rides: toRides(rides)})
}

func (s *Server) GetRide(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	rideID, ok := s.pathParam(w, r, "rideId")
	if !ok {
		return
	}
	ride, err := s.Rides.Get(r.Context(), domain.RideID(rideID))
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RideResponse{Ride: toRide(ride)})
}

func (s *Server) ListMyHostedRides(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rides, err := seq.Collect(s.Rides.RidesHostedBy(r.Context(), me.UserID))
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RideListResponse{Rides: toRides(rides)})
}

func (s *Server) ListMyJoinedRides(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rides, err := seq.Collect(s.Rides.RidesJoinedBy(r.Context(), me.UserID))
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RideListResponse{Rides: toRides(rides)})
}

func (s *Server) DeleteRide(w http.ResponseWriter, r *http.Request) {
	s.hostAction(w, r, s.Booking.DeleteRide)
}

func (s *Server) CompleteRide(w http.ResponseWriter, r *http.Request) {
	s.hostAction(w, r, s.Booking.CompleteRide)
}

func (s *Server) hostAction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id domain.RideID, requester domain.UserID) error) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rideID, ok := s.pathParam(w, r, "rideId")
	if !ok {
		return
	}
	if err := op(r.Context(), domain.RideID(rideID), me.UserID); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinRide books a seat for the caller and returns the caller/host conversation.
// Supports Idempotency-Key.
func (s *Server) JoinRide(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rideID, ok := s.pathParam(w, r, "rideId")
	if !ok {
		return
	}

	payload := struct {
		RideId string `json:"rideId"`
	}{RideId: rideID}
	s.idempotent(w, r, me.UserID, payload, func() (int, any, error) {
		conv, err := s.Booking.JoinRide(r.Context(), domain.RideID(rideID), me)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, ConversationResponse{Conversation: toConversation(conv)}, nil
	})
}

func (s *Server) LeaveRide(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rideID, ok := s.pathParam(w, r, "rideId")
	if !ok {
		return
	}
	if err := s.Booking.LeaveRide(r.Context(), domain.RideID(rideID), me.UserID); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) RemovePassenger(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rideID, ok := s.pathParam(w, r, "rideId")
	if !ok {
		return
	}
	target, ok := s.pathParam(w, r, "userId")
	if !ok {
		return
	}
	if err := s.Booking.RemovePassenger(r.Context(), domain.RideID(rideID), me.UserID, domain.UserID(target)); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
