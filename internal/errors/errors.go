package errors

import (
	"errors"
	"fmt"
)

// Common error types shared across the session server
var (
	// Configuration errors
	ErrMissingSessionKey = errors.New("session encryption key is required")
	ErrWeakSessionKey    = errors.New("session encryption key is too short")
	ErrInvalidConfig     = errors.New("invalid configuration")

	// Provider errors
	ErrProviderRejected = errors.New("oauth provider rejected the request")
	ErrMissingTokens    = errors.New("oauth provider response missing tokens")
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
