package accesstoken_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-agent-client/devserver/accesstoken"
	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestIssuer_IssueAndVerify(t *testing.T) {
	issuer := accesstoken.NewIssuer(accesstoken.NewHMACSigner("secret"), time.Minute)

	raw, err := issuer.Issue("user-1", "ada@example.com")
	require.NoError(t, err)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "ada@example.com", claims.Email)
	require.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt, 2*time.Second)
}

func TestIssuer_RejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := accesstoken.NewIssuer(accesstoken.NewHMACSigner("secret"), time.Minute)
	other := accesstoken.NewIssuer(accesstoken.NewHMACSigner("other"), time.Minute)

	foreign, err := other.Issue("user-1", "ada@example.com")
	require.NoError(t, err)
	_, err = issuer.Verify(foreign)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "gen": 0, "exp": time.Now().Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(none)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	accesstoken.NowTimeFunc = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := issuer.Issue("user-1", "ada@example.com")
	accesstoken.NowTimeFunc = time.Now
	require.NoError(t, err)
	_, err = issuer.Verify(stale)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestIssuer_RevokeAll(t *testing.T) {
	issuer := accesstoken.NewIssuer(accesstoken.NewHMACSigner("secret"), time.Minute)
	before, err := issuer.Issue("user-1", "ada@example.com")
	require.NoError(t, err)

	issuer.RevokeAll()
	_, err = issuer.Verify(before)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	after, err := issuer.Issue("user-1", "ada@example.com")
	require.NoError(t, err)
	_, err = issuer.Verify(after)
	require.NoError(t, err)
}
