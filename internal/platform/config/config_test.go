package config

import (
	"testing"
	"time"
)

func TestLoadAppConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "AUTH_MODE", "STORAGE_BACKEND", "EVENTS_BACKEND", "LOG_FORMAT", "DB_MAX_CONNS", "RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_BURST", "SHUTDOWN_TIMEOUT", "IDEMPOTENCY_RETENTION", "DATABASE_URL", "DEV_ISSUER"} {
		t.Setenv(k, "")
	}
	cfg, err := LoadAppConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadAppConfigFromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.AuthMode != "jwt" || cfg.StorageBackend != "memory" || cfg.EventsBackend != "none" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ShutdownTimeout != 10*time.Second || cfg.RateLimitPerMinute != 120 || cfg.IdempotencyRetention != 24*time.Hour {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.DevIssuer != "dev" {
		t.Fatalf("DevIssuer=%q, want dev", cfg.DevIssuer)
	}
}

func TestLoadAppConfigFromEnv_DevIssuer(t *testing.T) {
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("DEV_ISSUER", "local-idp")
	cfg, err := LoadAppConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadAppConfigFromEnv: %v", err)
	}
	if cfg.DevIssuer != "local-idp" {
		t.Fatalf("DevIssuer=%q", cfg.DevIssuer)
	}
}

func TestLoadAppConfigFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"auth mode", map[string]string{"AUTH_MODE": "basic"}},
		{"postgres without dsn", map[string]string{"STORAGE_BACKEND": "postgres", "DATABASE_URL": ""}},
		{"bad timeout", map[string]string{"SHUTDOWN_TIMEOUT": "ten"}},
		{"bad retention", map[string]string{"IDEMPOTENCY_RETENTION": "1 day"}},
		{"bad burst", map[string]string{"RATE_LIMIT_PER_MINUTE": "60", "RATE_LIMIT_BURST": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadAppConfigFromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadPricingConfigFromEnv(t *testing.T) {
	t.Setenv("PRICING_BASE_FARE", "")
	t.Setenv("PRICING_PER_MILE", "0.25")
	t.Setenv("PRICING_MIN_MILES", "")
	t.Setenv("PRICING_MAX_MILES", "")
	t.Setenv("PRICING_MINIMUM_FARE", "")
	cfg, err := LoadPricingConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadPricingConfigFromEnv: %v", err)
	}
	if cfg.BaseFare != 3 || cfg.PerMile != 0.25 || cfg.MinMiles != 10 || cfg.MaxMiles != 110 {
		t.Fatalf("cfg=%+v", cfg)
	}

	t.Setenv("PRICING_MAX_MILES", "5")
	if _, err := LoadPricingConfigFromEnv(); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestLoadJWTConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_ISSUER", "https://issuer.test")
	t.Setenv("JWT_AUDIENCE", "carpool")
	t.Setenv("JWT_JWKS_URL", "https://issuer.test/jwks.json")
	t.Setenv("JWT_NAME_CLAIM", "")
	t.Setenv("JWT_CLOCK_SKEW", "1m")
	t.Setenv("JWT_JWKS_REFRESH_INTERVAL", "")
	t.Setenv("JWT_JWKS_MIN_REFRESH_INTERVAL", "")

	cfg, err := LoadJWTConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadJWTConfigFromEnv: %v", err)
	}
	if cfg.NameClaim != "name" || cfg.ClockSkew != time.Minute || cfg.JWKSRefreshInterval != 5*time.Minute {
		t.Fatalf("cfg=%+v", cfg)
	}

	t.Setenv("JWT_AUDIENCE", "")
	if _, err := LoadJWTConfigFromEnv(); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}
