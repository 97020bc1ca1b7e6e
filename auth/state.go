package auth

import (
	"context"

	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/jrsteele09/yoto-session-server/session"
)

// Status is the middleware's classification of a request.
type Status int

const (
	// Anonymous: no cookie, an unreadable cookie, or a dead refresh token.
	Anonymous Status = iota
	// NotResident: the cookie is valid but the store has no record for it.
	NotResident
	// Resident: the cookie is valid and the store holds its record.
	Resident
)

func (s Status) String() string {
	switch s {
	case NotResident:
		return "not_resident"
	case Resident:
		return "resident"
	default:
		return "anonymous"
	}
}

// RequestState is what the middleware learned about the request. Payload holds
// the decoded cookie, if one could be read; Record is set only when Resident.
type RequestState struct {
	Status  Status
	Payload cookie.Payload
	Record  session.Record
}

type requestStateContextKey struct{}

func withRequestState(ctx context.Context, state RequestState) context.Context {
	return context.WithValue(ctx, requestStateContextKey{}, state)
}

// StateFromContext returns the classification attached by the middleware.
func StateFromContext(ctx context.Context) (RequestState, bool) {
	state, ok := ctx.Value(requestStateContextKey{}).(RequestState)
	return state, ok
}
