// Package devserver is an in-process backend that speaks the dashboard API
// contract: envelope responses, bearer access tokens with rotating refresh
// tokens, and in-memory agents, sources and chat sessions. cmd/devserver
// serves it; the client integration tests run against it with httptest.
package devserver

import (
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/go-agent-client/devserver/accesstoken"
	"github.com/jrsteele09/go-agent-client/devserver/refreshtokens"
	refreshrepofake "github.com/jrsteele09/go-agent-client/devserver/refreshtokens/repofake"
	"github.com/jrsteele09/go-agent-client/devserver/users"
	fakeuserrepo "github.com/jrsteele09/go-agent-client/devserver/users/repofake"
	"github.com/jrsteele09/go-agent-client/internal/config"
	"github.com/rs/zerolog/log"
)

// Config is the part of the application configuration the server reads.
type Config interface {
	GetEnv() string
	config.ServerConfig
}

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	users    users.Repo
	refresh  *refreshtokens.Manager
	issuer   *accesstoken.Issuer
	data     *store
	hitsLock sync.Mutex
	hits     map[string]int

	refreshConfig refreshtokens.Config
}

type Option func(*Server)

// WithUsers replaces the in-memory user directory.
func WithUsers(repo users.Repo) Option {
	return func(s *Server) {
		s.users = repo
	}
}

// WithRefreshRepo replaces the in-memory refresh token store.
func WithRefreshRepo(repo refreshtokens.Repo) Option {
	return func(s *Server) {
		s.refresh = refreshtokens.NewManager(repo, s.refreshConfig)
	}
}

func New(cfg Config, options ...Option) *Server {
	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		users:  fakeuserrepo.NewFakeUserRepo(),
		issuer: accesstoken.NewIssuer(accesstoken.NewHMACSigner(cfg.GetJWTSecret()), cfg.GetAccessTokenExpiry()),
		data:   newStore(),
		hits:   make(map[string]int),
	}
	s.refreshConfig = cfg
	s.refresh = refreshtokens.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), cfg)
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Hits is the number of requests received for method and path.
func (s *Server) Hits(method, path string) int {
	s.hitsLock.Lock()
	defer s.hitsLock.Unlock()
	return s.hits[method+" "+path]
}

// RevokeAccessTokens makes every access token issued so far fail with 401;
// refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.issuer.RevokeAll()
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}
