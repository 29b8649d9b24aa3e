package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridefinder/ridefinder/internal/auth"
)

const (
	testKey      = "test-secret-key-for-testing-only"
	testIssuer   = "https://routes.ridefinder.dev"
	testAudience = "ridefinder-api"
)

func newTestTokenService(t *testing.T, cfg auth.TokenConfig) *auth.TokenService {
	t.Helper()
	if cfg.SigningKey == "" {
		cfg.SigningKey = testKey
	}
	if cfg.Issuer == "" {
		cfg.Issuer = testIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = testAudience
	}
	svc, err := auth.NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newTestTokenService(t, auth.TokenConfig{})

	token, expiresAt, err := svc.IssueToken("ops-oncall", auth.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-oncall", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestNewTokenService_RequiresSigningKey(t *testing.T) {
	_, err := auth.NewTokenService(auth.TokenConfig{Issuer: testIssuer})
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
}

func TestTokenService_InvalidToken(t *testing.T) {
	svc := newTestTokenService(t, auth.TokenConfig{})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestTokenService_RejectsForeignTokens(t *testing.T) {
	svc := newTestTokenService(t, auth.TokenConfig{})

	tests := []struct {
		name   string
		issuer *auth.TokenService
	}{
		{"wrong signing key", newTestTokenService(t, auth.TokenConfig{SigningKey: "another-secret-key-entirely"})},
		{"wrong issuer", newTestTokenService(t, auth.TokenConfig{Issuer: "https://evil.example"})},
		{"wrong audience", newTestTokenService(t, auth.TokenConfig{Audience: "other-api"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := tt.issuer.IssueToken("someone", auth.RoleClient)
			require.NoError(t, err)

			_, err = svc.ValidateAccessToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestTokenService_ExpiredToken(t *testing.T) {
	svc := newTestTokenService(t, auth.TokenConfig{})

	past := time.Now().Add(-2 * time.Hour)
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "someone",
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
		Role: auth.RoleClient,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	svc := newTestTokenService(t, auth.TokenConfig{})

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "someone",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: auth.RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestClaims_HasRole(t *testing.T) {
	admin := &auth.Claims{Role: auth.RoleAdmin}
	client := &auth.Claims{Role: auth.RoleClient}

	assert.True(t, admin.HasRole(auth.RoleAdmin))
	assert.True(t, admin.HasRole(auth.RoleClient))
	assert.True(t, client.HasRole(auth.RoleClient))
	assert.False(t, client.HasRole(auth.RoleAdmin))
}
