package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bucketgate/service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// SubjectKey is the context key for the authenticated token subject.
const SubjectKey contextKey = "subject"

// RequireAuth returns middleware that validates an HMAC-signed Bearer JWT
// and injects its subject into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			var claims jwt.RegisteredClaims
			parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
				return []byte(jwtSecret), nil
			})
			if err != nil || !parsed.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated subject stored by RequireAuth.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(SubjectKey).(string)
	return sub, ok && sub != ""
}
