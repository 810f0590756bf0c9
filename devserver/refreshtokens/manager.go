package refreshtokens

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Config is the part of the server configuration refresh tokens need.
type Config interface {
	GetRefreshTokenLength() int
	GetRefreshTokenExpiry() time.Duration
}

// Manager handles refresh token creation, validation and rotation. A user
// holds at most one refresh token; issuing a new one revokes the old.
type Manager struct {
	repo   Repo
	config Config
}

func NewManager(repo Repo, cfg Config) *Manager {
	return &Manager{
		repo:   repo,
		config: cfg,
	}
}

// Create generates a new refresh token for userID and stores it.
func (m *Manager) Create(userID string) (string, error) {
	if existing, err := m.repo.GetByUserID(userID); err == nil && existing != nil {
		if err := m.repo.Delete(existing.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	length := m.config.GetRefreshTokenLength()
	if length <= 0 {
		length = 32
	}
	tokenBytes := make([]byte, length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    NowTimeFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return tokenStr, nil
}

// Rotate validates token, revokes it and issues its replacement. An unknown
// or expired token fails with ErrInvalidToken.
func (m *Manager) Rotate(token string) (*StoredRefreshToken, string, error) {
	rt, err := m.repo.Get(token)
	if err != nil || rt == nil {
		return nil, "", apperrors.Wrapf(apperrors.ErrInvalidToken, "refresh token unknown")
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, "", apperrors.Wrapf(apperrors.ErrInvalidToken, "refresh token expired")
	}
	next, err := m.Create(rt.UserID)
	if err != nil {
		return nil, "", err
	}
	return rt, next, nil
}

func (m *Manager) Get(token string) (*StoredRefreshToken, error) {
	return m.repo.Get(token)
}

func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return NowTimeFunc().Sub(rt.Iat) > m.config.GetRefreshTokenExpiry()
}
