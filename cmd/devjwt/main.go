package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Overland-East-Bay/carpool-api/internal/platform/auth/jwks_testutil"
)

// Tiny dev-only JWT issuer + JWKS server.
//
// This is NOT a full OIDC provider. It exists to support local development against
// real RS256 JWT verification (iss/aud/exp + JWKS) including the display-name claim.

func main() {
	port := getenv("PORT", "5556")
	issuer := getenv("ISSUER", "http://devjwt:5556")
	audience := getenv("AUDIENCE", "carpool-api")
	kid := getenv("KID", "dev-kid-1")
	ttl := getenvDuration("TTL", 30*time.Minute)

	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("service", "devjwt")

	kp, err := jwks_testutil.GenerateRSAKeypair(kid)
	if err != nil {
		log.Error("generate key", "err", err)
		os.Exit(1)
	}
	jwksJSON, err := jwks_testutil.MarshalJWKS(kp)
	if err != nil {
		log.Error("marshal jwks", "err", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Common JWKS path used by many providers.
	r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(jwksJSON)
	})

	// Mint a JWT:
	//   GET /token?sub=dev|alice&name=Alice%20Rider
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(r.URL.Query().Get("name"))

		now := time.Now().UTC()
		skew := -5 * time.Second // small skew tolerance for local use
		token, err := jwks_testutil.MintRS256JWT(kp, jwks_testutil.Claims{
			Issuer:    issuer,
			Audience:  []string{audience},
			Subject:   sub,
			Name:      name,
			IssuedAt:  now,
			ExpiresIn: ttl,
			NotBefore: &skew,
		})
		if err != nil {
			log.Error("mint token", "sub", sub, "err", err)
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"sub":   sub,
			"name":  name,
			"iss":   issuer,
			"aud":   audience,
			"exp":   now.Add(ttl).Unix(),
		})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("devjwt listening", "addr", srv.Addr, "iss", issuer, "aud", audience, "kid", kid, "ttl", ttl)
	if err := srv.ListenAndServe(); err != nil {
		log.Error("listen", "err", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
