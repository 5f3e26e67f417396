package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Overland-East-Bay/carpool-api/internal/app/apperr"
)

type RouterOptions struct {
	// AuthMiddleware, if set, is applied to all routes (it skips /healthz itself).
	AuthMiddleware func(http.Handler) http.Handler
	// RateLimiter, if set, limits mutating routes per caller. It runs after auth.
	RateLimiter *RateLimiter
	// Logger, if set, receives one line per request.
	Logger *slog.Logger
}

// NewRouter constructs the API HTTP router without auth. Handlers answer 401
// when no identity is in the request context.
func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Logger != nil {
		r.Use(requestLogger(opts.Logger))
	}
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, apperr.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	// Health endpoint is unauthenticated (used for infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if opts.AuthMiddleware != nil {
			r.Use(opts.AuthMiddleware)
		}
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware)
		}

		r.Route("/rides", func(r chi.Router) {
			r.Post("/", s.CreateRide)
			r.Get("/", s.ListRides)
			r.Route("/{rideId}", func(r chi.Router) {
				r.Get("/", s.GetRide)
				r.Delete("/", s.DeleteRide)
				r.Post("/complete", s.CompleteRide)
				r.Post("/leave", s.LeaveRide)
				r.Post("/passengers", s.JoinRide)
				r.Delete("/passengers/{userId}", s.RemovePassenger)
			})
		})
		r.Get("/me/rides/hosted", s.ListMyHostedRides)
		r.Get("/me/rides/joined", s.ListMyJoinedRides)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.ListMyConversations)
			r.Route("/{conversationId}", func(r chi.Router) {
				r.Get("/", s.GetConversation)
				r.Delete("/", s.DeleteConversation)
				r.Post("/messages", s.PostMessage)
			})
		})
	})
	return r
}
