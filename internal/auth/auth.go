package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL applies when no usable TTL is configured.
	DefaultTokenTTL = 3600 * time.Second

	minSigningKeyBytes = 32
)

// Claims is the signed payload of a session token.
type Claims struct {
	UserID string   `json:"uid,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenConfig holds the signing material and fixed claim values.
type TokenConfig struct {
	SigningKey []byte
	TTL        time.Duration
	Issuer     string
	Audience   string
}

// TokenService issues and validates HS256 session tokens. It keeps no
// server-side state: validity is a function of signature, claims and time.
type TokenService struct {
	key      []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService validates cfg and returns a ready service. A signing key
// shorter than 256 bits is a configuration error, never silently accepted.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.SigningKey) < minSigningKeyBytes {
		return nil, fmt.Errorf("%w: signing key must be at least %d bits, got %d",
			ErrConfiguration, minSigningKeyBytes*8, len(cfg.SigningKey)*8)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	audience := strings.TrimSpace(cfg.Audience)
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("%w: token issuer and audience are required", ErrConfiguration)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	s := &TokenService{
		key:      key,
		ttl:      ttl,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL reports the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for the principal and returns it with its expiry.
func (s *TokenService) Issue(principal Principal) (string, time.Time, error) {
	username := strings.TrimSpace(principal.Username)
	if username == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal username is required", ErrInvalidInput)
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := Claims{
		UserID: principal.UserID,
		Roles:  principal.authorities(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies signature first, then issuer, audience and expiry
// (strictly exp > now) against a single clock reading.
func (s *TokenService) Validate(token string) (*Claims, error) {
	now := s.now()
	parser := jwt.NewParser(
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	parsed, err := parser.ParseWithClaims(strings.TrimSpace(token), &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v", ErrTokenUnsupportedAlgorithm, t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenMalformed)
	}
	return claims, nil
}

// Authenticate validates token and resolves the session it represents.
func (s *TokenService) Authenticate(token string) (Session, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return Session{}, err
	}
	principal, err := principalFromAuthorities(claims.UserID, claims.Subject, claims.Roles)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return Session{
		Principal: principal,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// IsExpired reports expiry from the exp claim alone, without verifying the
// signature. Unreadable tokens count as expired.
func (s *TokenService) IsExpired(token string) bool {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !s.now().Before(claims.ExpiresAt.Time)
}

func classifyTokenError(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, ErrTokenUnsupportedAlgorithm):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		sentinel = ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		sentinel = ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		sentinel = ErrTokenIssuerMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrTokenExpired
	default:
		sentinel = ErrTokenMalformed
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
