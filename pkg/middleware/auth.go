package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/carelink-solutions/carelink-auth/pkg/httputil"
	"github.com/carelink-solutions/carelink-auth/pkg/logger"
)

type contextKeyType string

const userIDKey contextKeyType = "user_id"

// TokenExtractor pulls a raw credential out of a request. It returns "" when
// the request carries none.
type TokenExtractor func(r *http.Request) string

// CookieToken reads the token from the named cookie.
func CookieToken(name string) TokenExtractor {
	return func(r *http.Request) string {
		c, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return c.Value
	}
}

// BearerToken reads the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// FirstToken tries each extractor in order.
func FirstToken(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) string {
		for _, extract := range extractors {
			if tok := extract(r); tok != "" {
				return tok
			}
		}
		return ""
	}
}

// Authenticator turns a raw token into an authenticated context. It returns
// the subject (user id) alongside so the middleware can tag logs with it.
type Authenticator func(ctx context.Context, token string) (context.Context, string, error)

// Auth rejects the request with 401 unless extract finds a token that authn
// accepts. The downstream handler is not invoked on failure.
func Auth(authn Authenticator, extract TokenExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extract(r)
			if token == "" {
				writeAuthError(w, r, "authentication required")
				return
			}

			ctx, subject, err := authn(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "authentication failed",
					"error", err.Error(),
				)
				writeAuthError(w, r, "invalid or expired session")
				return
			}

			ctx = WithUserID(ctx, subject)
			ctx = logger.WithUserID(ctx, subject)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With("user_id", subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the id set by Auth, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
		Status:    http.StatusUnauthorized,
		Code:      "UNAUTHORIZED",
		Message:   message,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	})
}
