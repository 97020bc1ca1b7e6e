package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/yoto-session-server/apiclient"
	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/jrsteele09/yoto-session-server/token/refresh"
	"github.com/stretchr/testify/require"
)

const cookieName = "yoto_session"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeTokens stands in for the OAuth provider.
type fakeTokens struct {
	clock *fakeClock

	mu            sync.Mutex
	refreshCalls  int
	exchangeCalls int
	presented     []string
	codes         []string

	// started, if set, receives once per Refresh call before it blocks on release.
	started chan struct{}
	release chan struct{}
	// beforeReturn runs inside Refresh just before it returns.
	beforeReturn func()

	rotate     bool
	refreshErr error
}

func (f *fakeTokens) Refresh(ctx context.Context, refreshToken string) (refresh.Tokens, error) {
	f.mu.Lock()
	f.refreshCalls++
	call := f.refreshCalls
	f.presented = append(f.presented, refreshToken)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return refresh.Tokens{}, ctx.Err()
		}
	}
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	if f.refreshErr != nil {
		return refresh.Tokens{}, f.refreshErr
	}

	next := refreshToken
	if f.rotate {
		next = refreshToken + "-rotated"
	}
	return refresh.Tokens{
		AccessToken:       fmt.Sprintf("access-%d", call),
		AccessTokenExpiry: f.clock.Now().Add(time.Hour),
		RefreshToken:      next,
	}, nil
}

func (f *fakeTokens) Exchange(_ context.Context, code string) (refresh.Tokens, error) {
	f.mu.Lock()
	f.exchangeCalls++
	f.codes = append(f.codes, code)
	f.mu.Unlock()

	if code == "bad" {
		return refresh.Tokens{}, errors.New("invalid_grant")
	}
	refreshToken := "refresh-login"
	if code == "oversized" {
		refreshToken = strings.Repeat("r", cookie.MaxRefreshTokenLength+1)
	}
	return refresh.Tokens{
		AccessToken:       "access-login",
		AccessTokenExpiry: f.clock.Now().Add(time.Hour),
		RefreshToken:      refreshToken,
	}, nil
}

func (f *fakeTokens) Presented() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.presented...)
}

func (f *fakeTokens) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fixture struct {
	clock   *fakeClock
	store   *session.Store
	jar     *cookie.Jar
	tokens  *fakeTokens
	clients *apiclient.Cache
	service *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := cookie.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	f := &fixture{
		clock:   clock,
		store:   session.NewStore(session.WithClock(clock.Now)),
		jar:     cookie.NewJar(codec, cookie.Settings{Name: cookieName, MaxAge: 30 * 24 * time.Hour}),
		tokens:  &fakeTokens{clock: clock, rotate: true},
		clients: apiclient.NewCache("http://api.invalid", time.Second),
	}
	f.service = auth.New(auth.Config{
		Store:          f.store,
		Jar:            f.jar,
		Tokens:         f.tokens,
		Clients:        f.clients,
		RefreshTimeout: time.Second,
	})
	return f
}

// login creates a session directly in the store and returns its id and cookie.
func (f *fixture) login(t *testing.T, accessTTL, refreshTTL time.Duration) (string, *http.Cookie) {
	t.Helper()

	now := f.clock.Now()
	id, payload, err := f.store.Create("access-0", now.Add(accessTTL), "refresh-0", now.Add(refreshTTL))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, f.jar.Write(rec, payload))
	return id, sessionCookie(t, rec)
}

type result struct {
	session  *auth.Session
	err      error
	recorder *httptest.ResponseRecorder
}

// guard runs Service.Require behind the middleware, as a protected handler would.
func (f *fixture) guard(ctx context.Context, c *http.Cookie) result {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil).WithContext(ctx)
	if c != nil {
		req.AddCookie(c)
	}
	res := result{recorder: httptest.NewRecorder()}
	f.service.Middleware(func(w http.ResponseWriter, r *http.Request) {
		res.session, res.err = f.service.Require(w, r)
	})(res.recorder, req)
	return res
}

func (f *fixture) decode(t *testing.T, c *http.Cookie) cookie.Payload {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	p, err := f.jar.Read(req)
	require.NoError(t, err)
	return p
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("response set no %s cookie", cookieName)
	return nil
}

func hasSessionCookie(rec *httptest.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return true
		}
	}
	return false
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	var uerr *auth.UnauthenticatedError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, reason, uerr.Reason)
}
