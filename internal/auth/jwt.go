// Package auth issues and verifies the bearer tokens that guard the API.
//
// The routing engine holds no user accounts. Tokens are minted for operators and
// API clients out of band (see cmd/kroutes token) and carry a subject and a role.
// Admin endpoints require the admin role; route computation accepts any valid token
// when authentication is enabled.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long issued tokens are valid when no TTL is configured.
const DefaultTokenTTL = 1 * time.Hour

// Roles carried in tokens.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingSigningKey  = errors.New("jwt signing key is not configured")
)

// Claims represents the claims in API access tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Role is RoleClient or RoleAdmin.
	Role string `json:"role"`
}

// HasRole reports whether the token grants role. Admin tokens grant every role.
func (c *Claims) HasRole(role string) bool {
	return c.Role == role || c.Role == RoleAdmin
}

// TokenConfig holds configuration for the token service.
type TokenConfig struct {
	// SigningKey is the HS256 secret.
	SigningKey string

	// Issuer is the issuer claim for tokens (e.g., "https://routes.ridefinder.dev").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "ridefinder-api").
	Audience string

	// TTL is the lifetime of issued tokens (default: DefaultTokenTTL).
	TTL time.Duration
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        ttl,
	}, nil
}

// IssueToken creates a signed token for subject with the given role.
func (s *TokenService) IssueToken(subject, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates a token and returns its claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func generateTokenID() string {
	return uuid.NewString()
}
