// Package auth issues and validates the operator tokens that guard the admin
// endpoints.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator token policy
//
// Operator tokens are HS256 JWTs signed with ADMIN_JWT_SECRET. They carry the
// operator's identity in the subject and a role claim. The API only mounts
// admin routes when a secret is configured, so a deployment without one has
// no admin surface at all.
//
// Tokens are short-lived and are not refreshed: an operator mints a new one
// with `api -issue-admin-token <name>` when needed.

const (
	// RoleAdmin may read and change feature flags.
	RoleAdmin = "admin"

	// DefaultTokenExpiry is how long minted operator tokens stay valid.
	DefaultTokenExpiry = 12 * time.Hour

	// MinSigningKeyLength is the shortest accepted signing secret.
	MinSigningKeyLength = 32
)

// Predefined token errors.
var (
	ErrInvalidToken      = errors.New("invalid operator token")
	ErrTokenExpired      = errors.New("operator token has expired")
	ErrInsufficientRole  = errors.New("operator token lacks the required role")
	ErrSigningKeyTooWeak = errors.New("signing key is too short")
)

// Claims are the claims carried by operator tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the operator's role, e.g. "admin".
	Role string `json:"role"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the shared HS256 secret.
	SigningKey string

	// Issuer is the issuer claim for tokens (e.g., "gopti").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "gopti-admin").
	Audience string

	// Expiry for minted tokens. Default: 12h
	Expiry time.Duration
}

// JWTService handles operator token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSigningKeyTooWeak, MinSigningKeyLength)
	}
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = DefaultTokenExpiry
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     expiry,
		now:        time.Now,
	}, nil
}

// IssueToken mints a token for subject with the given role.
func (s *JWTService) IssueToken(subject, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

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
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize validates a token and checks that it carries role.
func (s *JWTService) Authorize(tokenString, role string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != role {
		return nil, ErrInsufficientRole
	}
	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
