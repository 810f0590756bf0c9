package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-agent-client/devserver/users"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         *users.User `json:"user,omitempty"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
	}
}

// LoginHandler exchanges email and password for an access and refresh token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		user, ok := users.Authenticate(s.users, req.Email, req.Password)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		updated := *user
		updated.LastLogin = time.Now().UTC()
		if err := s.users.Upsert(&updated); err != nil {
			log.Err(err).Str("email", req.Email).Msg("failed to record login")
		}

		session, err := s.newSession(&updated)
		if err != nil {
			log.Err(err).Str("email", req.Email).Msg("failed to create session")
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		writeData(w, http.StatusOK, session, "signed in")
	}
}

// RefreshHandler rotates a refresh token and issues a new access token.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refreshToken is required")
			return
		}

		stored, next, err := s.refresh.Rotate(req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		user, err := s.users.Get(stored.UserID)
		if err != nil || user.Blocked {
			_ = s.refresh.Delete(next)
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		access, err := s.issuer.Issue(user.ID, user.Email)
		if err != nil {
			log.Err(err).Str("user", user.ID).Msg("failed to issue access token")
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		writeData(w, http.StatusOK, sessionResponse{Token: access, RefreshToken: next}, "")
	}
}

// LogoutHandler revokes the refresh token. Unknown tokens are not an error.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.RefreshToken != "" {
			_ = s.refresh.Delete(req.RefreshToken)
		}
		writeData(w, http.StatusOK, nil, "signed out")
	}
}

func (s *Server) newSession(user *users.User) (*sessionResponse, error) {
	access, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.refresh.Create(user.ID)
	if err != nil {
		return nil, err
	}
	return &sessionResponse{Token: access, RefreshToken: refresh, User: user}, nil
}
