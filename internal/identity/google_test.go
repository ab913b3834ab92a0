package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testClientID = "easymanager-web.apps.googleusercontent.com"

var verifyNow = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

type certsServer struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
}

func newCertsServer(t *testing.T, key *rsa.PrivateKey, kid string) *certsServer {
	t.Helper()
	cs := &certsServer{}
	cs.status.Store(http.StatusOK)
	body, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]string{{
			"kid": kid,
			"kty": "RSA",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)

	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		if status := int(cs.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=600, must-revalidate")
		_, _ = w.Write(body)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func googleClaims(overrides map[string]interface{}) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "1098765",
		"email":          "Kim@Shop.test",
		"email_verified": true,
		"name":           "Kim Lee",
		"picture":        "https://lh3.example/kim.png",
		"iat":            verifyNow.Add(-time.Minute).Unix(),
		"exp":            verifyNow.Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}
	return claims
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestVerifier(t *testing.T) (*GoogleVerifier, *rsa.PrivateKey, *certsServer) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cs := newCertsServer(t, key, "k1")
	v := NewGoogleVerifier(testClientID, cs.URL, zap.NewNop(), WithClock(func() time.Time { return verifyNow }))
	return v, key, cs
}

func TestVerify_ValidToken(t *testing.T) {
	v, key, cs := newTestVerifier(t)

	id, err := v.Verify(context.Background(), sign(t, key, "k1", googleClaims(nil)))
	require.NoError(t, err)
	assert.Equal(t, GoogleIdentity{
		Subject: "1098765",
		Email:   "kim@shop.test",
		Name:    "Kim Lee",
		Picture: "https://lh3.example/kim.png",
	}, id)

	_, err = v.Verify(context.Background(), sign(t, key, "k1", googleClaims(map[string]interface{}{"email_verified": "true"})))
	require.NoError(t, err)
	assert.Equal(t, int32(1), cs.hits.Load())
}

func TestVerify_RejectsBadTokens(t *testing.T) {
	v, key, cs := newTestVerifier(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, googleClaims(nil))
	hmac.Header["kid"] = "k1"
	hmacSigned, err := hmac.SignedString([]byte("shared"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"other audience", sign(t, key, "k1", googleClaims(map[string]interface{}{"aud": "someone-else"}))},
		{"other issuer", sign(t, key, "k1", googleClaims(map[string]interface{}{"iss": "https://evil.example"}))},
		{"expired", sign(t, key, "k1", googleClaims(map[string]interface{}{"exp": verifyNow.Add(-time.Minute).Unix()}))},
		{"unverified email", sign(t, key, "k1", googleClaims(map[string]interface{}{"email_verified": false}))},
		{"wrong signing key", sign(t, other, "k1", googleClaims(nil))},
		{"unknown key id", sign(t, key, "k9", googleClaims(nil))},
		{"hmac signed", hmacSigned},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
	// the unknown key id did not force a second fetch inside the refresh gap
	assert.Equal(t, int32(1), cs.hits.Load())
}

func TestVerify_CertsUnavailable(t *testing.T) {
	v, key, cs := newTestVerifier(t)
	cs.status.Store(http.StatusServiceUnavailable)

	_, err := v.Verify(context.Background(), sign(t, key, "k1", googleClaims(nil)))
	assert.ErrorIs(t, err, ErrKeysUnavailable)
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 600*time.Second, maxAge("public, max-age=600, must-revalidate"))
	assert.Equal(t, defaultKeyTTL, maxAge("no-cache"))
	assert.Equal(t, defaultKeyTTL, maxAge("max-age=abc"))
}
