package client

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RequestWithRetry runs fn up to attempts times, waiting delay*attempt between
// tries. Only network and server errors are retried. Intermediate failures are
// not announced; the final one is. Non-positive arguments use the client's
// configured defaults.
func (c *Client) RequestWithRetry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = c.retryAttempts
	}
	if attempts <= 0 {
		attempts = 1
	}
	if delay <= 0 {
		delay = c.retryDelay
	}

	quiet := withQuiet(ctx)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(quiet); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			break
		}
		wait := delay * time.Duration(attempt)
		log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying request")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	var appErr *Error
	if asError(err, &appErr) {
		c.announce(ctx, appErr)
	}
	return err
}

func retryable(err error) bool {
	return IsKind(err, KindNetwork) || IsKind(err, KindServer)
}
