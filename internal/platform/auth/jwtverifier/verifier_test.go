package jwtverifier_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Overland-East-Bay/carpool-api/internal/platform/auth/jwks_testutil"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/auth/jwtverifier"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/config"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fixture struct {
	srv     *httptest.Server
	setKeys func([]jwks_testutil.Keypair)
	kp      jwks_testutil.Keypair
	clk     *fakeClock
	cfg     config.JWTConfig
}

func newFixture(t *testing.T, refresh time.Duration) fixture {
	t.Helper()
	srv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	t.Cleanup(srv.Close)

	kp, err := jwks_testutil.GenerateRSAKeypair("kid-1")
	if err != nil {
		t.Fatalf("GenerateRSAKeypair: %v", err)
	}
	setKeys([]jwks_testutil.Keypair{kp})

	return fixture{
		srv:     srv,
		setKeys: setKeys,
		kp:      kp,
		clk:     &fakeClock{now: time.Unix(1700000000, 0)},
		cfg: config.JWTConfig{
			Issuer:                 "test-iss",
			Audience:               "test-aud",
			JWKSURL:                srv.URL,
			NameClaim:              "name",
			ClockSkew:              0,
			JWKSRefreshInterval:    refresh,
			JWKSMinRefreshInterval: 0,
			HTTPTimeout:            2 * time.Second,
		},
	}
}

func (f fixture) claims(sub string, exp time.Duration) jwks_testutil.Claims {
	return jwks_testutil.Claims{
		Issuer:    f.cfg.Issuer,
		Audience:  []string{f.cfg.Audience},
		Subject:   sub,
		Name:      "  Ada   Lovelace ",
		IssuedAt:  f.clk.Now(),
		ExpiresIn: exp,
	}
}

func TestVerifier_Verify_ValidToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	tok, err := jwks_testutil.MintRS256JWT(f.kp, f.claims("user-123", 5*time.Minute))
	if err != nil {
		t.Fatalf("MintRS256JWT: %v", err)
	}
	id, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-123" || id.DisplayName != "Ada Lovelace" {
		t.Fatalf("identity=%+v", id)
	}
}

func TestVerifier_Verify_MissingNameFallsBackToSubject(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	c := f.claims("user-123", 5*time.Minute)
	c.Name = ""
	tok, _ := jwks_testutil.MintRS256JWT(f.kp, c)
	id, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.DisplayName != "user-123" {
		t.Fatalf("displayName=%q want subject", id.DisplayName)
	}
}

func TestVerifier_Verify_AudienceArray(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	c := f.claims("user-123", 5*time.Minute)
	c.Audience = []string{"other", f.cfg.Audience}
	tok, _ := jwks_testutil.MintRS256JWT(f.kp, c)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifier_Verify_Expired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	tok, _ := jwks_testutil.MintRS256JWT(f.kp, f.claims("user-123", -1*time.Minute))
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, jwtverifier.ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
}

func TestVerifier_Verify_NotYetValid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	c := f.claims("user-123", 5*time.Minute)
	nbf := 2 * time.Minute
	c.NotBefore = &nbf
	tok, _ := jwks_testutil.MintRS256JWT(f.kp, c)
	if _, err := v.Verify(context.Background(), tok); err == nil {
		t.Fatalf("expected error for nbf in the future")
	}
	f.clk.Advance(3 * time.Minute)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify after nbf: %v", err)
	}
}

func TestVerifier_Verify_WrongIssuerOrAudience(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	c := f.claims("user-123", 5*time.Minute)
	c.Issuer = "wrong-iss"
	tok, _ := jwks_testutil.MintRS256JWT(f.kp, c)
	if _, err := v.Verify(context.Background(), tok); err == nil {
		t.Fatalf("expected error for wrong iss")
	}

	c = f.claims("user-123", 5*time.Minute)
	c.Audience = []string{"wrong-aud"}
	tok, _ = jwks_testutil.MintRS256JWT(f.kp, c)
	if _, err := v.Verify(context.Background(), tok); err == nil {
		t.Fatalf("expected error for wrong aud")
	}
}

func TestVerifier_Verify_MissingSubject(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	tok, _ := jwks_testutil.MintRS256JWT(f.kp, f.claims("", 5*time.Minute))
	if _, err := v.Verify(context.Background(), tok); err == nil {
		t.Fatalf("expected error for empty sub")
	}
}

func TestVerifier_Verify_BadSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10*time.Minute)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)

	// Same kid, different private key than what's in JWKS.
	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	otherKP := jwks_testutil.Keypair{Kid: "kid-1", Private: other}
	tok, _ := jwks_testutil.MintRS256JWT(otherKP, f.claims("user-123", 5*time.Minute))
	if _, err := v.Verify(context.Background(), tok); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := v.Verify(context.Background(), "not-a-jwt"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
}

func TestVerifier_Verify_JWKSRotation_OldKidRejected_NewKidAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1*time.Second)
	v := jwtverifier.NewWithOptions(f.cfg, nil, f.clk)
	k2, _ := jwks_testutil.GenerateRSAKeypair("kid-2")

	tok1, _ := jwks_testutil.MintRS256JWT(f.kp, f.claims("user-123", 5*time.Minute))
	if _, err := v.Verify(context.Background(), tok1); err != nil {
		t.Fatalf("expected tok1 to verify: %v", err)
	}

	// Rotate: JWKS now only contains kid-2.
	f.setKeys([]jwks_testutil.Keypair{k2})
	f.clk.Advance(2 * time.Second) // force interval refresh on next Verify call.

	if _, err := v.Verify(context.Background(), tok1); err == nil {
		t.Fatalf("expected tok1 to be rejected after rotation")
	}

	tok2, _ := jwks_testutil.MintRS256JWT(k2, f.claims("user-456", 5*time.Minute))
	id, err := v.Verify(context.Background(), tok2)
	if err != nil {
		t.Fatalf("expected tok2 to verify: %v", err)
	}
	if id.UserID != "user-456" {
		t.Fatalf("sub mismatch: got %q", id.UserID)
	}
}
