package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/Overland-East-Bay/carpool-api/internal/app/apperr"
	"github.com/Overland-East-Bay/carpool-api/internal/app/booking"
	"github.com/Overland-East-Bay/carpool-api/internal/app/catalog"
	"github.com/Overland-East-Bay/carpool-api/internal/app/chat"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 64 << 10

// Server holds the HTTP handlers. Reads go straight to the catalog and chat
// services; anything that changes seats or announces events goes through Booking.
type Server struct {
	Booking *booking.Coordinator
	Rides   *catalog.Service
	Chat    *chat.Service
	Idem    idempotency.Store
	Clock   clock.Clock
	Log     *slog.Logger
}

func NewServer(b *booking.Coordinator, rides *catalog.Service, convs *chat.Service, idem idempotency.Store, clk clock.Clock, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Booking: b,
		Rides:   rides,
		Chat:    convs,
		Idem:    idem,
		Clock:   clk,
		Log:     log,
	}
}

// caller returns the authenticated identity, writing a 401 when there is none.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject", nil)
		return domain.Identity{}, false
	}
	return id, true
}

// pathParam binds a required simple-style path parameter.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil || strings.TrimSpace(v) == "" {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "invalid path parameter", map[string]any{name: "required"})
		return "", false
	}
	return v, true
}

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "unreadable request body", nil)
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "malformed JSON body", map[string]any{"body": err.Error()})
		return false
	}
	if dec.More() {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidInput, "malformed JSON body", map[string]any{"body": "trailing data"})
		return false
	}
	return true
}

// idempotent runs op at most once per (Idempotency-Key, caller, route, payload).
//
//   - Replay the stored response if the same key arrives with the same payload.
//   - Reject (409) if the same key arrives with a different payload.
//   - A duplicate that arrives while the first request is still running waits
//     for its response and replays it.
//   - Failed operations are not stored, so the caller may retry them with the same key.
//
// Without the header, or without a store, op simply runs.
func (s *Server) idempotent(w http.ResponseWriter, r *http.Request, caller domain.UserID, payload any, op func() (int, any, error)) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || s.Idem == nil {
		status, resp, err := op()
		if err != nil {
			writeAppError(w, r, s.Log, err)
			return
		}
		writeJSON(w, status, resp)
		return
	}

	bodyHash, err := hashBody(payload)
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	metaFP := idempotency.Fingerprint{
		Key:    idempotency.Key(key),
		UserID: caller,
		Method: r.Method,
		Route:  routePattern(r),
	}
	meta, reserved, err := s.Idem.Reserve(ctx, metaFP, idempotency.Record{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte(bodyHash),
		CreatedAt:   s.Clock.Now().UTC(),
	})
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	if !reserved && len(meta.Body) > 0 && string(meta.Body) != bodyHash {
		writeError(w, r, http.StatusConflict, codeIdempotencyKeyReuse, "idempotency key reuse with different payload", nil)
		return
	}

	respFP := metaFP
	respFP.BodyHash = bodyHash
	if !s.claimResponse(w, r, respFP) {
		return
	}

	status, resp, err := op()
	if err != nil {
		if rerr := s.Idem.Release(context.WithoutCancel(ctx), respFP); rerr != nil {
			s.Log.WarnContext(ctx, "idempotency reservation not released", slog.String("route", metaFP.Route), slog.Any("err", rerr))
		}
		writeAppError(w, r, s.Log, err)
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	if err := s.Idem.Put(ctx, respFP, idempotency.Record{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        b,
		CreatedAt:   s.Clock.Now().UTC(),
	}); err != nil {
		// The operation is committed; a lost record only costs replay on retry.
		s.Log.WarnContext(ctx, "idempotency record not stored", slog.String("route", metaFP.Route), slog.Any("err", err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

const (
	idemPendingPoll = 25 * time.Millisecond
	idemPendingWait = 10 * time.Second
	// Reservations older than this belong to a request that died mid-flight.
	idemPendingTTL = time.Minute
)

// claimResponse reserves fp for this request. It reports false after writing
// a replayed response or an error.
func (s *Server) claimResponse(w http.ResponseWriter, r *http.Request, fp idempotency.Fingerprint) bool {
	ctx := r.Context()
	deadline := time.NewTimer(idemPendingWait)
	defer deadline.Stop()
	for {
		rec, reserved, err := s.Idem.Reserve(ctx, fp, idempotency.Record{CreatedAt: s.Clock.Now().UTC()})
		if err != nil {
			writeAppError(w, r, s.Log, err)
			return false
		}
		if reserved {
			return true
		}
		if !rec.Pending() {
			w.Header().Set("Content-Type", rec.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return false
		}
		if !rec.CreatedAt.IsZero() && s.Clock.Now().Sub(rec.CreatedAt) > idemPendingTTL {
			if err := s.Idem.Release(ctx, fp); err != nil {
				writeAppError(w, r, s.Log, err)
				return false
			}
			continue
		}

		select {
		case <-time.After(idemPendingPoll):
		case <-deadline.C:
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusConflict, codeIdempotencyKeyInProgress, "a request with this idempotency key is still in progress", nil)
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func hashBody(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
