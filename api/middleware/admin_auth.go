package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/igorsal/pr-sentinel/internal/interfaces"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

// AdminAuthMiddleware guards administrative routes with a static bearer
// token. With no token configured every request is refused.
func AdminAuthMiddleware(adminToken string, logger interfaces.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				WriteError(w, r, logger, pkgerrors.NewForbiddenError("admin API is disabled"))
				return
			}

			token := extractToken(r)
			if token == "" {
				WriteError(w, r, logger, pkgerrors.NewUnauthorizedError("authorization token required"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				WriteError(w, r, logger, pkgerrors.NewUnauthorizedError("invalid token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.Header.Get("X-Admin-Token")
}
