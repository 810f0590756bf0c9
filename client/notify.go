package client

import (
	"context"

	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user facing announcement. Every classified error is
// announced once, where it is classified.
type Notification struct {
	Level   Level
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	switch n.Level {
	case LevelError:
		log.Error().Err(n.Err).Msg(n.Message)
	case LevelWarning:
		log.Warn().Err(n.Err).Msg(n.Message)
	default:
		log.Info().Msg(n.Message)
	}
}

type quietKey struct{}

// withQuiet suppresses announcements for calls made with ctx; the caller
// takes over announcing the final outcome.
func withQuiet(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietKey{}, true)
}

func isQuiet(ctx context.Context) bool {
	quiet, _ := ctx.Value(quietKey{}).(bool)
	return quiet
}

func (c *Client) announce(ctx context.Context, err *Error) {
	if isQuiet(ctx) || c.notifier == nil {
		return
	}
	level := LevelError
	if err.Kind == KindValidation || err.Kind == KindNotFound {
		level = LevelWarning
	}
	c.notifier.Notify(Notification{Level: level, Message: err.Message, Err: err})
}
