package devserver

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-agent-client/devserver/users"
)

// AddUser creates or replaces a user with the given password.
func (s *Server) AddUser(email, password, name string) (*users.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("[devserver AddUser] email and password are required")
	}
	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("[devserver AddUser] failed to hash password: %w", err)
	}
	user := &users.User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		DateJoined:   time.Now().UTC(),
	}
	if existing, err := s.users.GetByEmail(email); err == nil && existing != nil {
		user.ID = existing.ID
		user.DateJoined = existing.DateJoined
	}
	if err := s.users.Upsert(user); err != nil {
		return nil, fmt.Errorf("[devserver AddUser] failed to store user: %w", err)
	}
	return user, nil
}

// Bootstrap makes sure the development account exists. When password is
// empty a random one is generated and returned so it can be shown once.
func (s *Server) Bootstrap(email, password string) (generatedPassword string, err error) {
	if existing, err := s.users.GetByEmail(email); err == nil && existing != nil && password == "" {
		return "", nil
	}

	generatedPassword = password
	if generatedPassword == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[devserver Bootstrap] failed to generate password: %w", err)
		}
		generatedPassword = base64.URLEncoding.EncodeToString(passwordBytes)
	}
	if _, err := s.AddUser(email, generatedPassword, "Developer"); err != nil {
		return "", err
	}
	return generatedPassword, nil
}
