package session

import (
	"maps"
	"time"
)

// Record is the in-memory half of a session: the short-lived access credential.
// Absence from the Store means "unknown, may need rehydration", never "invalid".
type Record struct {
	ID                string
	AccessToken       string
	AccessTokenExpiry time.Time
	CreatedAt         time.Time

	// Values holds auxiliary session-scoped state. It plays no part in authentication.
	Values map[string]any

	// refreshToken is the latest credential issued for the session. It is
	// memory only and never logged.
	refreshToken  string
	refreshExpiry time.Time
}

// IssuedRefreshToken returns the latest refresh credential issued for the
// session, or "" when none is known.
func (r Record) IssuedRefreshToken() (string, time.Time) {
	return r.refreshToken, r.refreshExpiry
}

// AccessExpired reports whether the access token is unusable at now.
func (r Record) AccessExpired(now time.Time) bool {
	return !now.Before(r.AccessTokenExpiry)
}

// Age is how long ago the session was first created, across any number of rehydrations.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

func (r Record) clone() Record {
	r.Values = maps.Clone(r.Values)
	return r
}

// ShortID returns a log-safe prefix of a session id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
