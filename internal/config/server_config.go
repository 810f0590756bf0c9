package config

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig configures the development backend.
type ServerConfig interface {
	GetPort() string
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
}

type Server struct {
	src *source
}

var _ ServerConfig = Server{}

func (s Server) GetPort() string {
	port := s.src.value("PORT", "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (s Server) GetJWTSecret() string {
	return s.src.value("JWT_SECRET", "dev-secret")
}

func (s Server) GetAccessTokenExpiry() time.Duration {
	return s.src.duration("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

func (s Server) GetRefreshTokenExpiry() time.Duration {
	return s.src.duration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
}

func (s Server) GetRefreshTokenLength() int {
	return s.src.integer("REFRESH_TOKEN_LENGTH", 32) // 32 bytes = 256 bits
}
