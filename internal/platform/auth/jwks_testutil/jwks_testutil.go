package jwks_testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Keypair struct {
	Kid     string
	Private *rsa.PrivateKey
}

func GenerateRSAKeypair(kid string) (Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Kid: kid, Private: priv}, nil
}

// MarshalJWKS renders the public halves of keys as a JWKS document.
func MarshalJWKS(keys ...Keypair) ([]byte, error) {
	type jwk struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
		Alg string `json:"alg"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	type jwks struct {
		Keys []jwk `json:"keys"`
	}
	enc := base64.RawURLEncoding
	out := jwks{Keys: make([]jwk, 0, len(keys))}
	for _, kp := range keys {
		pub := kp.Private.PublicKey
		out.Keys = append(out.Keys, jwk{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kp.Kid,
			N:   enc.EncodeToString(pub.N.Bytes()),
			// e is a big-endian unsigned int.
			E: enc.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return json.Marshal(out)
}

// NewRotatingJWKSServer returns a JWKS server whose key set can be swapped at runtime.
//
// Use SetKeys to rotate keys.
func NewRotatingJWKSServer() (*httptest.Server, func(keys []Keypair)) {
	var jwksJSON atomic.Value // []byte
	jwksJSON.Store([]byte(`{"keys":[]}`))

	setKeys := func(keys []Keypair) {
		b, _ := MarshalJWKS(keys...)
		jwksJSON.Store(b)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksJSON.Load().([]byte))
	}))

	return srv, setKeys
}

// Claims describes the token to mint. Zero Name or NotBefore are omitted.
type Claims struct {
	Issuer    string
	Audience  []string
	Subject   string
	Name      string
	IssuedAt  time.Time
	ExpiresIn time.Duration
	NotBefore *time.Duration // relative to IssuedAt
}

// MintRS256JWT signs c with kp, putting kp.Kid in the header.
func MintRS256JWT(kp Keypair, c Claims) (string, error) {
	claims := jwt.MapClaims{
		"iss": c.Issuer,
		"aud": c.Audience,
		"sub": c.Subject,
		"iat": c.IssuedAt.Unix(),
		"exp": c.IssuedAt.Add(c.ExpiresIn).Unix(),
	}
	if len(c.Audience) == 1 {
		claims["aud"] = c.Audience[0]
	}
	if c.Name != "" {
		claims["name"] = c.Name
	}
	if c.NotBefore != nil {
		claims["nbf"] = c.IssuedAt.Add(*c.NotBefore).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.Kid
	return tok.SignedString(kp.Private)
}
