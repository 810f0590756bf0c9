package errors

import (
	"errors"
	"fmt"
)

// Common error types for the agent client
var (
	// Storage errors
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSealedValue        = errors.New("sealed value could not be opened")

	// Credential errors
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrSessionExpired     = errors.New("session expired")
	ErrRefreshTimeout     = errors.New("credential refresh timed out")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoAccessToken      = errors.New("no access token")

	// Queue errors
	ErrQueueFull      = errors.New("offline queue full")
	ErrQueueClosed    = errors.New("offline queue closed")
	ErrInvalidRequest = errors.New("invalid request")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
