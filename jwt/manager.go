package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSigningKey is returned by Issue when the key source is empty,
	// typically after the rotation manager was closed.
	ErrNoSigningKey = errors.New("no signing key available")
	// ErrTokenInvalid covers every verification failure.
	ErrTokenInvalid = errors.New("invalid access token")
)

// KeySource supplies signing and verification secrets.
type KeySource interface {
	GetCurrentSecret() string
	CurrentFingerprint() string
	SecretByFingerprint(fingerprint string) (string, bool)
	GetAllValidSecrets() []string
}

// Config controls token lifetime and registered-claim validation.
type Config struct {
	AccessTTL    time.Duration
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	// Now overrides the wall clock. Nil means time.Now.
	Now func() time.Time
}

// AccessClaims is the payload of an access token. SID binds the token to a
// server-side session.
type AccessClaims struct {
	UID  string `json:"uid"`
	TID  string `json:"tid,omitempty"`
	SID  string `json:"sid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs with the current secret and verifies with any valid one.
type Manager struct {
	config Config
	keys   KeySource
}

func NewManager(cfg Config, keys KeySource) (*Manager, error) {
	if keys == nil {
		return nil, errors.New("key source required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg, keys: keys}, nil
}

// Issue signs an access token for the given session.
func (j *Manager) Issue(uid, tid, sid, role string) (string, error) {
	key := j.keys.GetCurrentSecret()
	kid := j.keys.CurrentFingerprint()
	if key == "" || kid == "" {
		return "", ErrNoSigningKey
	}

	now := j.config.Now()
	claims := AccessClaims{
		UID:  uid,
		TID:  tid,
		SID:  sid,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	return token.SignedString([]byte(key))
}

// Parse verifies tokenStr. The secret named by the "kid" header is tried
// first; tokens without a known kid are checked against every valid secret,
// so tokens signed before a restart with seeded legacy secrets still verify.
// A token signed with an evicted secret always fails.
func (j *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	parser := j.parser()

	fallback := false
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := j.keys.SecretByFingerprint(kid)
		if !ok {
			fallback = true
			return nil, errors.New("unknown kid")
		}
		return []byte(key), nil
	})
	if err == nil {
		return j.accept(token)
	}
	if !fallback {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	for _, key := range j.keys.GetAllValidSecrets() {
		token, err = parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(*jwt.Token) (interface{}, error) {
			return []byte(key), nil
		})
		if err == nil {
			return j.accept(token)
		}
	}
	return nil, fmt.Errorf("%w: no valid secret verifies token", ErrTokenInvalid)
}

func (j *Manager) parser() *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}
	return jwt.NewParser(options...)
}

func (j *Manager) accept(token *jwt.Token) (*AccessClaims, error) {
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.SID == "" {
		return nil, fmt.Errorf("%w: missing sid", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
		}
	}
	return claims, nil
}
