package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
	"github.com/carelink-solutions/carelink-auth/pkg/middleware"
)

// SessionCookieName is the cookie that carries the access token.
const SessionCookieName = "accessToken"

var (
	ErrUserGone       = errors.New("session user no longer exists")
	ErrSessionRevoked = errors.New("session has been revoked")
)

// UserLookup resolves the user a token was issued to.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// NewAuthenticator verifies an access token, loads its user and rejects the
// token if the user has since bumped their token version. The user is
// attached to the returned context.
func NewAuthenticator(tokens *TokenService, users UserLookup) middleware.Authenticator {
	return func(ctx context.Context, token string) (context.Context, string, error) {
		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			return ctx, "", err
		}

		user, err := users.FindByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return ctx, "", fmt.Errorf("%w: %s", ErrUserGone, claims.UserID)
			}
			return ctx, "", fmt.Errorf("resolve session user: %w", err)
		}
		if user.TokenVersion != claims.TokenVersion {
			return ctx, "", ErrSessionRevoked
		}

		return WithUser(ctx, user), user.ID, nil
	}
}

// SessionToken reads the token from the session cookie, falling back to an
// Authorization: Bearer header.
func SessionToken() middleware.TokenExtractor {
	return middleware.FirstToken(middleware.CookieToken(SessionCookieName), middleware.BearerToken)
}

type userKeyType struct{}

func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKeyType{}, u)
}

// UserFromContext returns the user attached by the session middleware.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKeyType{}).(*domain.User)
	return u, ok && u != nil
}

// CookiePolicy decides the attributes of the session cookie.
type CookiePolicy struct {
	Secure bool
	MaxAge time.Duration
}

// NewCookiePolicy marks the cookie Secure outside development. A secure
// cookie is sent cross-site (SameSite=None) because the web client is served
// from another origin; a development cookie uses Lax.
func NewCookiePolicy(development bool, maxAge time.Duration) CookiePolicy {
	return CookiePolicy{Secure: !development, MaxAge: maxAge}
}

func (p CookiePolicy) sameSite() http.SameSite {
	if p.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// SetSessionCookie writes the access token cookie.
func (p CookiePolicy) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.sameSite(),
	})
}

// ClearSessionCookie expires the cookie. The attributes match the ones it
// was set with, or browsers keep the original.
func (p CookiePolicy) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.sameSite(),
	})
}
