// Package auth turns an encrypted session cookie into a usable access token.
// Middleware classifies every request; Service.Require is the entry point for
// handlers that need an authenticated caller.
package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/yoto-session-server/apiclient"
	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/jrsteele09/yoto-session-server/metrics"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/jrsteele09/yoto-session-server/token/refresh"
	"golang.org/x/sync/singleflight"
)

// TokenSource obtains tokens from the OAuth provider.
type TokenSource interface {
	Refresh(ctx context.Context, refreshToken string) (refresh.Tokens, error)
	Exchange(ctx context.Context, code string) (refresh.Tokens, error)
}

var _ TokenSource = (*refresh.Client)(nil)

type Config struct {
	Store  *session.Store
	Jar    *cookie.Jar
	Tokens TokenSource
	// Clients is optional; when set, Require hands out a per-session API client.
	Clients *apiclient.Cache
	// Metrics is optional.
	Metrics metrics.Recorder
	// RefreshTimeout bounds a refresh independently of the triggering request.
	RefreshTimeout time.Duration
}

type Service struct {
	store          *session.Store
	jar            *cookie.Jar
	tokens         TokenSource
	clients        *apiclient.Cache
	metrics        metrics.Recorder
	refreshTimeout time.Duration

	// flights collapses concurrent refreshes of one session into a single provider call.
	flights singleflight.Group
}

func New(cfg Config) *Service {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = (*metrics.Metrics)(nil)
	}
	return &Service{
		store:          cfg.Store,
		jar:            cfg.Jar,
		tokens:         cfg.Tokens,
		clients:        cfg.Clients,
		metrics:        cfg.Metrics,
		refreshTimeout: cfg.RefreshTimeout,
	}
}

// Session is an authenticated caller as seen by a handler.
type Session struct {
	ID                string
	AccessToken       string
	AccessTokenExpiry time.Time
	CreatedAt         time.Time
	// Client is nil when the service has no API client cache.
	Client *apiclient.Client
}

func (s *Service) sessionFor(rec session.Record) *Session {
	out := &Session{
		ID:                rec.ID,
		AccessToken:       rec.AccessToken,
		AccessTokenExpiry: rec.AccessTokenExpiry,
		CreatedAt:         rec.CreatedAt,
	}
	if s.clients != nil {
		out.Client = s.clients.GetOrCreate(rec.ID, rec.AccessToken, rec.AccessTokenExpiry)
	}
	return out
}
