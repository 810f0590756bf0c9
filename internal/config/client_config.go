package config

import "time"

type ClientConfig interface {
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetRetryAttempts() int
	GetRetryDelay() time.Duration
}

type Client struct {
	src *source
}

var _ ClientConfig = Client{}

func (c Client) GetRequestTimeout() time.Duration {
	return c.src.duration("REQUEST_TIMEOUT", 30*time.Second)
}

// GetRefreshTimeout bounds a credential refresh; waiters are rejected when it elapses.
func (c Client) GetRefreshTimeout() time.Duration {
	return c.src.duration("REFRESH_TIMEOUT", 15*time.Second)
}

func (c Client) GetRetryAttempts() int {
	return c.src.integer("RETRY_ATTEMPTS", 3)
}

func (c Client) GetRetryDelay() time.Duration {
	return c.src.duration("RETRY_DELAY", time.Second)
}
