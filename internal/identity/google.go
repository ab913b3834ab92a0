// Package identity verifies Google ID tokens for the sign-in endpoint.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken    = errors.New("invalid google id token")
	ErrKeysUnavailable = errors.New("google signing keys unavailable")
)

const (
	defaultKeyTTL = time.Hour
	minRefreshGap = time.Minute
	certsTimeout  = 10 * time.Second
)

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleIdentity is what a verified ID token says about its holder.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleVerifier checks ID tokens against Google's published RSA keys. Keys
// are cached for as long as the certs response allows.
type GoogleVerifier struct {
	clientID string
	certsURL string
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
	expires time.Time
}

type Option func(*GoogleVerifier)

func WithHTTPClient(client *http.Client) Option {
	return func(v *GoogleVerifier) { v.client = client }
}

func WithClock(now func() time.Time) Option {
	return func(v *GoogleVerifier) { v.now = now }
}

func NewGoogleVerifier(clientID, certsURL string, logger *zap.Logger, opts ...Option) *GoogleVerifier {
	v := &GoogleVerifier{
		clientID: clientID,
		certsURL: certsURL,
		client:   &http.Client{Timeout: certsTimeout},
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks signature, audience, issuer, expiry and that Google has
// verified the e-mail address.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (GoogleIdentity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if errors.Is(err, ErrKeysUnavailable) {
		return GoogleIdentity{}, err
	}
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if iss, _ := claims["iss"].(string); !googleIssuers[iss] {
		return GoogleIdentity{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, iss)
	}

	id := GoogleIdentity{
		Subject: stringClaim(claims, "sub"),
		Email:   strings.ToLower(stringClaim(claims, "email")),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}
	if id.Subject == "" || id.Email == "" {
		return GoogleIdentity{}, fmt.Errorf("%w: subject or email missing", ErrInvalidToken)
	}
	if !emailVerified(claims["email_verified"]) {
		return GoogleIdentity{}, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}
	return id, nil
}

func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if k, ok := v.keys[kid]; ok && now.Before(v.expires) {
		return k, nil
	}
	// an unknown kid only triggers a refetch once per gap
	if now.Before(v.expires) && now.Sub(v.fetched) < minRefreshGap {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	if err := v.refresh(ctx, now); err != nil {
		return nil, err
	}
	k, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return k, nil
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *GoogleVerifier) refresh(ctx context.Context, now time.Time) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: certs endpoint returned %d", ErrKeysUnavailable, resp.StatusCode)
	}

	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decoding certs: %v", ErrKeysUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			v.logger.Warn("skipping malformed google key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no usable keys", ErrKeysUnavailable)
	}

	v.keys = keys
	v.fetched = now
	v.expires = now.Add(maxAge(resp.Header.Get("Cache-Control")))
	v.logger.Debug("google signing keys refreshed", zap.Int("keys", len(keys)))
	return nil
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(e)
	if !exponent.IsInt64() || exponent.Int64() < 3 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultKeyTTL
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

// emailVerified accepts the boolean Google sends and the string form some
// older tokens carry.
func emailVerified(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	}
	return false
}
