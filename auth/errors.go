package auth

import (
	"errors"
)

// ErrUnauthenticated means no usable access credential could be produced for
// the request. It is the only session error handlers ever see.
var ErrUnauthenticated = errors.New("unauthenticated")

// Reasons carried by UnauthenticatedError.
const (
	ReasonNoCookie       = "no session cookie"
	ReasonRefreshExpired = "refresh token expired"
	ReasonSessionEnded   = "session ended"
	ReasonRefreshFailed  = "refresh failed"
	ReasonExchangeFailed = "authorization code exchange failed"
)

// UnauthenticatedError describes why a request could not be authenticated.
// errors.Is(err, ErrUnauthenticated) holds for every instance.
type UnauthenticatedError struct {
	Reason string
	Cause  error
}

func (e *UnauthenticatedError) Error() string {
	if e.Cause != nil {
		return "unauthenticated: " + e.Reason + ": " + e.Cause.Error()
	}
	return "unauthenticated: " + e.Reason
}

func (e *UnauthenticatedError) Unwrap() error {
	return e.Cause
}

func (e *UnauthenticatedError) Is(target error) bool {
	return target == ErrUnauthenticated
}

func unauthenticated(reason string, cause error) error {
	return &UnauthenticatedError{Reason: reason, Cause: cause}
}

// IsUnauthenticated is shorthand for errors.Is(err, ErrUnauthenticated).
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
