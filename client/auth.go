package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/logout"
)

// Session is what a successful sign in returns.
type Session struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user,omitempty"`
}

// SignIn exchanges credentials for a token pair and stores both.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, &Error{Kind: KindValidation, Message: "email and password are required", Err: apperrors.ErrInvalidCredentials}
	}
	cl, err := c.newCall(http.MethodPost, loginPath, map[string]string{"email": email, "password": password}, nil)
	if err != nil {
		return nil, err
	}
	cl.skipAuth = true

	var session Session
	if _, err := c.send(ctx, cl, &session); err != nil {
		return nil, err
	}
	if session.Token == "" {
		appErr := &Error{Kind: KindApp, Message: "sign in returned no token", Err: apperrors.ErrInvalidToken}
		c.announce(ctx, appErr)
		return nil, appErr
	}
	c.tokens.SetAuthToken(session.Token, 0)
	if session.RefreshToken != "" {
		c.tokens.SetRefreshToken(session.RefreshToken)
	}
	log.Info().Str("email", email).Msg("signed in")
	return &session, nil
}

// SignOut revokes the refresh token on a best effort basis, then discards the
// credentials and any queued work.
func (c *Client) SignOut(ctx context.Context) {
	if refreshToken := c.tokens.GetRefreshToken(); refreshToken != "" {
		cl, err := c.newCall(http.MethodPost, logoutPath, map[string]string{"refreshToken": refreshToken}, nil)
		if err == nil {
			if _, err := c.send(withQuiet(ctx), cl, nil); err != nil {
				log.Debug().Err(err).Msg("logout request failed, clearing local session anyway")
			}
		}
	}
	c.clearSession()
	log.Info().Msg("signed out")
}

func (c *Client) clearSession() {
	c.tokens.ClearTokens()
	if c.queue != nil {
		c.queue.Clear()
	}
}

// refreshAccessToken is the coordinator's refresh call. It accepts the token
// either inside the envelope or at the top level of the body.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	cl, err := c.newCall(http.MethodPost, refreshPath, map[string]string{"refreshToken": refreshToken}, nil)
	if err != nil {
		return "", err
	}
	cl.skipAuth = true
	var raw bytes.Buffer
	cl.sink = &raw
	if _, err := c.send(withQuiet(ctx), cl, nil); err != nil {
		return "", err
	}

	var body struct {
		Token string `json:"token"`
		Data  struct {
			Token        string `json:"token"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw.Bytes(), &body); err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidToken, "refresh response: %v", err)
	}
	if body.Data.RefreshToken != "" {
		c.tokens.SetRefreshToken(body.Data.RefreshToken)
	}
	if body.Data.Token != "" {
		return body.Data.Token, nil
	}
	return body.Token, nil
}

// sessionExpired runs once per failed refresh, after every waiting call has
// been rejected.
func (c *Client) sessionExpired(err error) {
	c.clearSession()
	if c.notifier != nil {
		c.notifier.Notify(Notification{Level: LevelWarning, Message: "session expired, please sign in again", Err: err})
	}
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}
