package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/auth"
)

const testKey = "test-secret-key-for-testing-only-0123456789"

func newJWTService(t *testing.T, cfg auth.JWTConfig) *auth.JWTService {
	t.Helper()
	if cfg.SigningKey == "" {
		cfg.SigningKey = testKey
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "gopti"
	}
	if cfg.Audience == "" {
		cfg.Audience = "gopti-admin"
	}
	svc, err := auth.NewJWTService(cfg)
	require.NoError(t, err)
	return svc
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newJWTService(t, auth.JWTConfig{})

	token, expiresAt, err := svc.IssueToken("ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenExpiry), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
	assert.Equal(t, "gopti", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_Authorize(t *testing.T) {
	svc := newJWTService(t, auth.JWTConfig{})

	admin, _, err := svc.IssueToken("ops", auth.RoleAdmin)
	require.NoError(t, err)
	viewer, _, err := svc.IssueToken("intern", "viewer")
	require.NoError(t, err)

	claims, err := svc.Authorize(admin, auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	_, err = svc.Authorize(viewer, auth.RoleAdmin)
	assert.ErrorIs(t, err, auth.ErrInsufficientRole)

	_, err = svc.Authorize("garbage", auth.RoleAdmin)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newJWTService(t, auth.JWTConfig{})

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
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	svc := newJWTService(t, auth.JWTConfig{Expiry: -time.Minute})

	token, _, err := svc.IssueToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestJWTService_Mismatch(t *testing.T) {
	issuer := newJWTService(t, auth.JWTConfig{})
	token, _, err := issuer.IssueToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  auth.JWTConfig
	}{
		{name: "signing key", cfg: auth.JWTConfig{SigningKey: "another-secret-key-for-testing-0123456789"}},
		{name: "issuer", cfg: auth.JWTConfig{Issuer: "someone-else"}},
		{name: "audience", cfg: auth.JWTConfig{Audience: "public-api"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newJWTService(t, tt.cfg).ValidateToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc := newJWTService(t, auth.JWTConfig{})

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gopti",
			Audience:  jwt.ClaimStrings{"gopti-admin"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: auth.RoleAdmin,
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestNewJWTService_WeakKey(t *testing.T) {
	_, err := auth.NewJWTService(auth.JWTConfig{SigningKey: "short"})
	assert.ErrorIs(t, err, auth.ErrSigningKeyTooWeak)
}
