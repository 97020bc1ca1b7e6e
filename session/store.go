package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned by mutations against a session that is no
// longer resident, typically after a concurrent logout. Callers treat it as a no-op.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionEnded is returned by Rehydrate for a session that was logged out
// within the ended TTL. It matches ErrSessionNotFound.
var ErrSessionEnded = fmt.Errorf("%w: ended by logout", ErrSessionNotFound)

// DefaultEndedTTL is how long a logged out session id refuses rehydration.
const DefaultEndedTTL = time.Minute

// Store is the concurrency-safe in-memory map of session id to access credential.
// Nothing in it is persisted; the cookie is the source of truth.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*Record
	refreshing map[string]int
	// ended maps logged out session ids to the time they may be rehydrated again.
	ended map[string]time.Time

	now      func() time.Time
	skew     time.Duration
	endedTTL time.Duration
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithExpirySkew treats access tokens as expired d before their stated expiry.
func WithExpirySkew(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.skew = d
		}
	}
}

// WithEndedTTL sets how long End keeps a session id from being rehydrated.
// It should outlast the longest refresh call.
func WithEndedTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.endedTTL = d
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		records:    make(map[string]*Record),
		refreshing: make(map[string]int),
		ended:      make(map[string]time.Time),
		now:        time.Now,
		endedTTL:   DefaultEndedTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Create inserts a fresh session and returns the cookie payload to hand to the browser.
func (s *Store) Create(accessToken string, accessExpiry time.Time, refreshToken string, refreshExpiry time.Time) (string, cookie.Payload, error) {
	id, err := newID()
	if err != nil {
		return "", cookie.Payload{}, err
	}
	createdAt := s.now()

	s.mu.Lock()
	s.records[id] = &Record{
		ID:                id,
		AccessToken:       accessToken,
		AccessTokenExpiry: accessExpiry,
		CreatedAt:         createdAt,
		refreshToken:      refreshToken,
		refreshExpiry:     refreshExpiry,
	}
	s.mu.Unlock()

	log.Info().Str("session", ShortID(id)).Msg("created session")
	return id, cookie.NewPayload(id, refreshToken, refreshExpiry, createdAt), nil
}

// Get returns a copy of the resident record, if any.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Rehydrate (re)inserts a record for a session known only from its cookie.
// createdAt comes from the cookie so the session keeps its original age.
// Auxiliary values of a record that is still resident are kept. A session
// ended by logout within the ended TTL is refused with ErrSessionEnded.
func (s *Store) Rehydrate(id, accessToken string, accessExpiry, createdAt time.Time) (Record, error) {
	s.mu.Lock()
	if s.endedLocked(id, s.now()) {
		s.mu.Unlock()
		log.Warn().Str("session", ShortID(id)).Msg("rehydration of logged out session refused")
		return Record{}, ErrSessionEnded
	}
	rec := &Record{
		ID:                id,
		AccessToken:       accessToken,
		AccessTokenExpiry: accessExpiry,
		CreatedAt:         createdAt,
	}
	if existing, ok := s.records[id]; ok {
		rec.Values = existing.Values
		rec.refreshToken = existing.refreshToken
		rec.refreshExpiry = existing.refreshExpiry
	}
	s.records[id] = rec
	out := rec.clone()
	s.mu.Unlock()

	log.Info().Str("session", ShortID(id)).Msg("rehydrated session from cookie")
	return out, nil
}

// SetRefreshToken records the refresh credential most recently issued for a
// resident session and returns the updated record. Requests whose cookie still
// carries an older credential are handed this one.
func (s *Store) SetRefreshToken(id, refreshToken string, refreshExpiry time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	rec.refreshToken = refreshToken
	rec.refreshExpiry = refreshExpiry
	return rec.clone(), nil
}

// UpdateAccessToken swaps the access credential of a resident session in place.
func (s *Store) UpdateAccessToken(id, accessToken string, accessExpiry time.Time) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if ok {
		rec.AccessToken = accessToken
		rec.AccessTokenExpiry = accessExpiry
	}
	s.mu.Unlock()

	if !ok {
		log.Warn().Str("session", ShortID(id)).Msg("access token update for non-resident session ignored")
		return ErrSessionNotFound
	}
	log.Debug().Str("session", ShortID(id)).Msg("updated access token")
	return nil
}

// Delete removes a session. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	_, ok := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if ok {
		log.Info().Str("session", ShortID(id)).Msg("deleted session")
	}
}

// End removes a session at logout and keeps its id from being rehydrated for
// the ended TTL, so a refresh already in flight cannot bring it back.
func (s *Store) End(id string) {
	s.mu.Lock()
	_, ok := s.records[id]
	delete(s.records, id)
	s.ended[id] = s.now().Add(s.endedTTL)
	s.mu.Unlock()

	if ok {
		log.Info().Str("session", ShortID(id)).Msg("ended session")
	}
}

// Ended reports whether id was ended by logout within the ended TTL.
func (s *Store) Ended(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedLocked(id, s.now())
}

func (s *Store) endedLocked(id string, now time.Time) bool {
	until, ok := s.ended[id]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(s.ended, id)
		return false
	}
	return true
}

// IsAccessExpired applies the store's clock and skew to rec.
func (s *Store) IsAccessExpired(rec Record) bool {
	return rec.AccessExpired(s.now().Add(s.skew))
}

// BeginRefresh marks a session as having a refresh in flight so SweepExpired leaves it alone.
// Every call must be paired with EndRefresh.
func (s *Store) BeginRefresh(id string) {
	s.mu.Lock()
	s.refreshing[id]++
	s.mu.Unlock()
}

func (s *Store) EndRefresh(id string) {
	s.mu.Lock()
	if s.refreshing[id] <= 1 {
		delete(s.refreshing, id)
	} else {
		s.refreshing[id]--
	}
	s.mu.Unlock()
}

// SweepExpired drops every record whose access token has expired, except those
// currently being refreshed. It returns how many were removed. Lapsed logout
// markers are dropped too.
func (s *Store) SweepExpired() int {
	clock := s.now()
	now := clock.Add(s.skew)

	s.mu.Lock()
	for id := range s.ended {
		s.endedLocked(id, clock)
	}
	removed := 0
	for id, rec := range s.records {
		if !rec.AccessExpired(now) {
			continue
		}
		if s.refreshing[id] > 0 {
			continue
		}
		delete(s.records, id)
		removed++
	}
	s.mu.Unlock()

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept expired sessions")
	}
	return removed
}

// SetValue attaches auxiliary state to a resident session.
func (s *Store) SetValue(id, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrSessionNotFound
	}
	if rec.Values == nil {
		rec.Values = make(map[string]any)
	}
	rec.Values[key] = value
	return nil
}

func (s *Store) Value(id, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	v, ok := rec.Values[key]
	return v, ok
}

// Len is the number of resident sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
