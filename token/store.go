package token

import (
	"time"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"golang.org/x/oauth2"
)

const (
	AuthTokenKey    = "auth_token"
	RefreshTokenKey = "refresh_token"
)

// Store holds the access and refresh credentials in the durable key-value
// store. It is read on every request and never cached.
type Store struct {
	kv *storage.Store
}

var _ oauth2.TokenSource = (*Store)(nil)

func NewStore(kv *storage.Store) *Store {
	return &Store{kv: kv}
}

// GetAuthToken returns the access token, or "" when none is stored or it has expired.
func (s *Store) GetAuthToken() string {
	tok, _ := storage.Get[string](s.kv, AuthTokenKey)
	return tok
}

// SetAuthToken stores the access token. A zero ttl is derived from the token's
// exp claim when it is a JWT; otherwise the token does not expire locally.
func (s *Store) SetAuthToken(token string, ttl time.Duration) bool {
	if ttl == 0 {
		if exp, ok := ExpiryOf(token); ok {
			if remaining := exp.Sub(storage.NowTimeFunc()); remaining > 0 {
				ttl = remaining
			}
		}
	}
	return s.kv.SetItem(AuthTokenKey, token, ttl)
}

func (s *Store) GetRefreshToken() string {
	tok, _ := storage.Get[string](s.kv, RefreshTokenKey)
	return tok
}

func (s *Store) SetRefreshToken(token string) bool {
	return s.kv.SetItem(RefreshTokenKey, token, 0)
}

func (s *Store) ClearTokens() {
	s.kv.RemoveItem(AuthTokenKey)
	s.kv.RemoveItem(RefreshTokenKey)
}

// Token implements oauth2.TokenSource over the stored credentials.
func (s *Store) Token() (*oauth2.Token, error) {
	access := s.GetAuthToken()
	if access == "" {
		return nil, apperrors.ErrNoAccessToken
	}
	t := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: s.GetRefreshToken(),
	}
	if exp, ok := ExpiryOf(access); ok {
		t.Expiry = exp
	}
	return t, nil
}
