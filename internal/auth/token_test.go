package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
)

var (
	secretS1 = []byte("s1-0123456789abcdefghijklmnopqrstuv")
	secretS2 = []byte("s2-0123456789abcdefghijklmnopqrstuv")
	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestSignVerify_ExpiryAndSecret(t *testing.T) {
	ttl := time.Hour
	token, err := Sign(Claims{UserID: "u-1", TokenVersion: 2, Type: TokenAccess}, secretS1, ttl, baseTime)
	require.NoError(t, err)

	t.Run("valid before expiry", func(t *testing.T) {
		claims, err := Verify(token, secretS1, baseTime.Add(ttl-time.Second))
		require.NoError(t, err)
		assert.Equal(t, "u-1", claims.UserID)
		assert.Equal(t, "u-1", claims.Subject)
		assert.Equal(t, 2, claims.TokenVersion)
		assert.Equal(t, TokenAccess, claims.Type)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("expired after ttl", func(t *testing.T) {
		_, err := Verify(token, secretS1, baseTime.Add(ttl+time.Second))
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("other secret", func(t *testing.T) {
		_, err := Verify(token, secretS2, baseTime)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("other secret after expiry", func(t *testing.T) {
		_, err := Verify(token, secretS2, baseTime.Add(2*ttl))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerify_Malformed(t *testing.T) {
	for _, tok := range []string{"", "abc", "a.b.c", "not.a.jwt.at.all"} {
		_, err := Verify(tok, secretS1, baseTime)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	token, err := Sign(Claims{UserID: "u-1", Type: TokenAccess}, secretS1, time.Hour, baseTime)
	require.NoError(t, err)

	other, err := Sign(Claims{UserID: "admin", Type: TokenAccess}, secretS2, time.Hour, baseTime)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

	_, err = Verify(forged, secretS1, baseTime)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{UserID: "u-1", Type: TokenAccess, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(baseTime.Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Verify(token, secretS1, baseTime)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_MissingUserID(t *testing.T) {
	token, err := Sign(Claims{Type: TokenAccess}, secretS1, time.Hour, baseTime)
	require.NoError(t, err)

	_, err = Verify(token, secretS1, baseTime)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSign_EmptySecret(t *testing.T) {
	_, err := Sign(Claims{UserID: "u-1"}, nil, time.Hour, baseTime)
	assert.Error(t, err)
}

func newTestTokenService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{
		AccessSecret:  string(secretS1),
		RefreshSecret: string(secretS2),
		AccessTTL:     168 * time.Hour,
		RefreshTTL:    720 * time.Hour,
	})
	require.NoError(t, err)
	return svc.WithClock(func() time.Time { return *now })
}

func TestNewTokenService_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  TokenConfig
	}{
		{"empty access", TokenConfig{RefreshSecret: "r", AccessTTL: time.Hour, RefreshTTL: time.Hour}},
		{"same secrets", TokenConfig{AccessSecret: "x", RefreshSecret: "x", AccessTTL: time.Hour, RefreshTTL: time.Hour}},
		{"zero ttl", TokenConfig{AccessSecret: "a", RefreshSecret: "r", RefreshTTL: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenService(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestTokenService_IssuePair(t *testing.T) {
	now := baseTime
	svc := newTestTokenService(t, &now)
	user := &domain.User{ID: "u-42", TokenVersion: 5}

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	access, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-42", access.UserID)
	assert.Equal(t, 5, access.TokenVersion)

	refresh, err := svc.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenRefresh, refresh.Type)
	assert.Equal(t, now.Add(720*time.Hour).Unix(), refresh.ExpiresAt.Unix())

	// Each kind is bound to its own secret.
	_, err = svc.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = svc.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenService_AccessExpiresAfterTTL(t *testing.T) {
	now := baseTime
	svc := newTestTokenService(t, &now)

	pair, err := svc.IssuePair(&domain.User{ID: "u-1"})
	require.NoError(t, err)

	now = baseTime.Add(svc.AccessTTL() + time.Second)
	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = svc.VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_WrongType(t *testing.T) {
	now := baseTime
	svc := newTestTokenService(t, &now)

	token, err := Sign(Claims{UserID: "u-1", Type: TokenRefresh}, secretS1, time.Hour, now)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrWrongType)
}
