package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/auth"
)

// subjectKey is the context key for the authenticated operator.
type subjectKey struct{}

// TokenAuthorizer validates an operator token for a role.
type TokenAuthorizer interface {
	Authorize(token, role string) (*auth.Claims, error)
}

// AdminAuth rejects requests that do not carry a valid bearer token with the
// admin role.
func AdminAuth(authorizer TokenAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := authorizer.Authorize(tokenString, auth.RoleAdmin)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInsufficientRole):
					writeForbidden(w, r, "operator token lacks the admin role")
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "operator token has expired")
				default:
					writeUnauthorized(w, r, "invalid operator token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the authenticated operator, or "" outside AdminAuth.
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(subjectKey{}).(string); ok {
		return subject
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gopti-admin"`)
	models.NewUnauthorized(GetRequestID(r.Context()), detail).WithInstance(r.URL.Path).Write(w)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewForbidden(GetRequestID(r.Context()), detail).WithInstance(r.URL.Path).Write(w)
}
