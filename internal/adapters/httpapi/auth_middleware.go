package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

// IdentityVerifier turns a bearer token into the caller's identity.
// *jwtverifier.Verifier satisfies it.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// NewAuthMiddleware enforces Authorization: Bearer <JWT> on every route except /healthz.
//
// On success, it stores the caller's identity (JWT `sub` plus display name) in request context.
func NewAuthMiddleware(v IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing Authorization header", nil)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing bearer token", nil)
				return
			}

			id, err := v.Verify(r.Context(), raw)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// NewDevAuthMiddleware is a local/dev-only auth shim.
//
// The caller is taken from X-Debug-Subject (falling back to defaultSubject) and
// X-Debug-Name (falling back to the subject). Do NOT use this in production deployments.
func NewDevAuthMiddleware(defaultSubject string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			sub := strings.TrimSpace(r.Header.Get("X-Debug-Subject"))
			if sub == "" {
				sub = strings.TrimSpace(defaultSubject)
			}
			if sub == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject (set X-Debug-Subject)", nil)
				return
			}
			name := domain.NormalizeHumanName(r.Header.Get("X-Debug-Name"))
			if name == "" {
				name = sub
			}

			id := domain.Identity{UserID: domain.UserID(sub), DisplayName: name}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
