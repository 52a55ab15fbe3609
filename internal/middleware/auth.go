// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/atinyakov/GophSpend/internal/auth"
)

type ctxKey string

const accountKey ctxKey = "account"

// TokenParser validates a session token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticate rejects requests without a valid session token.
//
// The token is read from the Authorization bearer header, falling back to
// the "token" cookie for websocket handshakes from browsers. The account
// email is stored in the request context.
func Authenticate(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing auth token", http.StatusUnauthorized)
				return
			}
			claims, err := parser.Parse(token)
			if err != nil {
				http.Error(w, "invalid auth token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), accountKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

// GetAccountFromContext returns the authenticated account email, or "" when
// the request was not authenticated.
func GetAccountFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(accountKey).(string); ok {
		return s
	}
	return ""
}
