package accesstoken

import (
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const generationClaim = "gen"

// Claims is what a verified access token carries.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Issuer mints and verifies short lived access tokens. Tokens carry the
// issuer generation; bumping it with RevokeAll invalidates every token
// issued so far without touching refresh tokens.
type Issuer struct {
	signer     Signer
	expiry     time.Duration
	generation atomic.Int64
}

func NewIssuer(signer Signer, expiry time.Duration) *Issuer {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Issuer{signer: signer, expiry: expiry}
}

func (i *Issuer) Issue(userID, email string) (string, error) {
	now := NowTimeFunc()
	return i.signer.Sign(jwt.MapClaims{
		"sub":           userID,
		"email":         email,
		"iat":           now.Unix(),
		"exp":           now.Add(i.expiry).Unix(),
		"jti":           uuid.NewString(),
		generationClaim: i.generation.Load(),
	})
}

func (i *Issuer) Verify(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(NowTimeFunc),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, i.signer.GetVerificationKey); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}

	gen, ok := claims[generationClaim].(float64)
	if !ok || int64(gen) != i.generation.Load() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "token revoked")
	}
	sub, _ := claims.GetSubject()
	exp, _ := claims.GetExpirationTime()
	email, _ := claims["email"].(string)
	out := &Claims{UserID: sub, Email: email}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// RevokeAll invalidates every access token issued so far.
func (i *Issuer) RevokeAll() {
	i.generation.Add(1)
}
