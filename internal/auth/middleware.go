package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
)

type contextKey int

const claimsContextKey contextKey = iota

// ClaimsFromContext returns the claims RequireAuth stored for the
// request.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(Claims)
	return claims, ok
}

// RequireAuth validates the bearer token before the wrapped handler
// runs. Expired, forged and revoked tokens all produce the same 401
// body so the response leaks nothing about which check failed.
func RequireAuth(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		claims, err := service.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenRevoked) {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to validate token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
