package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/jrsteele09/yoto-session-server/token/refresh"
	"github.com/stretchr/testify/require"
)

const month = 30 * 24 * time.Hour

func requireSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestRequire_Rejections(t *testing.T) {
	t.Run("no cookie", func(t *testing.T) {
		f := newFixture(t)
		res := f.guard(context.Background(), nil)
		requireReason(t, res.err, auth.ReasonNoCookie)
		require.Nil(t, res.session)
		require.False(t, hasSessionCookie(res.recorder))
	})

	t.Run("corrupt cookie is treated as no cookie", func(t *testing.T) {
		f := newFixture(t)
		res := f.guard(context.Background(), &http.Cookie{Name: cookieName, Value: "not-a-session"})
		requireReason(t, res.err, auth.ReasonNoCookie)
		require.Zero(t, f.tokens.RefreshCalls())
	})

	t.Run("expired refresh token is rejected even while the record is resident", func(t *testing.T) {
		f := newFixture(t)
		id, c := f.login(t, time.Hour, time.Minute)
		f.clock.Advance(time.Minute)

		res := f.guard(context.Background(), c)
		requireReason(t, res.err, auth.ReasonRefreshExpired)
		require.Zero(t, f.tokens.RefreshCalls())
		_, resident := f.store.Get(id)
		require.True(t, resident)
	})

	t.Run("unauthenticated is distinguishable from other errors", func(t *testing.T) {
		require.True(t, auth.IsUnauthenticated(&auth.UnauthenticatedError{Reason: "x"}))
		require.True(t, auth.IsUnauthenticated(fmt.Errorf("wrapped: %w", &auth.UnauthenticatedError{Reason: "x"})))
		require.False(t, auth.IsUnauthenticated(context.Canceled))
	})
}

func TestRequire_ResidentValid(t *testing.T) {
	f := newFixture(t)
	id, c := f.login(t, time.Hour, month)

	res := f.guard(context.Background(), c)
	require.NoError(t, res.err)
	require.Equal(t, id, res.session.ID)
	require.Equal(t, "access-0", res.session.AccessToken)
	require.NotNil(t, res.session.Client)
	require.Equal(t, "access-0", res.session.Client.AccessToken())

	require.Zero(t, f.tokens.RefreshCalls())
	require.False(t, hasSessionCookie(res.recorder))
}

func TestRequire_ResidentExpiredRefreshes(t *testing.T) {
	f := newFixture(t)
	id, c := f.login(t, time.Minute, month)
	createdAt := f.clock.Now()

	first := f.guard(context.Background(), c)
	require.NoError(t, first.err)
	client := first.session.Client

	f.clock.Advance(2 * time.Minute)
	res := f.guard(context.Background(), c)
	require.NoError(t, res.err)
	require.Equal(t, "access-1", res.session.AccessToken)

	rec, ok := f.store.Get(id)
	require.True(t, ok)
	require.Equal(t, "access-1", rec.AccessToken)
	require.False(t, f.store.IsAccessExpired(rec))

	t.Run("cookie is rotated with identity preserved", func(t *testing.T) {
		p := f.decode(t, sessionCookie(t, res.recorder))
		require.Equal(t, id, p.SessionID)
		require.Equal(t, "refresh-0-rotated", p.RefreshToken)
		requireSameTime(t, createdAt, p.CreatedAt)
		requireSameTime(t, f.clock.Now().Add(month), p.RefreshTokenExpiry)
	})

	t.Run("cached api client is updated in place", func(t *testing.T) {
		require.Same(t, client, res.session.Client)
		require.Equal(t, "access-1", client.AccessToken())
	})
}

func TestRequire_NotResidentRehydrates(t *testing.T) {
	f := newFixture(t)
	id, c := f.login(t, time.Hour, month)
	createdAt := f.clock.Now()

	// Simulates a restart.
	f.store.Delete(id)
	f.clock.Advance(10 * time.Minute)

	res := f.guard(context.Background(), c)
	require.NoError(t, res.err)
	require.Equal(t, id, res.session.ID)
	requireSameTime(t, createdAt, res.session.CreatedAt)

	rec, ok := f.store.Get(id)
	require.True(t, ok)
	require.Equal(t, "access-1", rec.AccessToken)
	requireSameTime(t, createdAt, rec.CreatedAt)
	require.Equal(t, 10*time.Minute, rec.Age(f.clock.Now()))

	p := f.decode(t, sessionCookie(t, res.recorder))
	require.Equal(t, id, p.SessionID)
	require.Equal(t, "refresh-0-rotated", p.RefreshToken)
	requireSameTime(t, createdAt, p.CreatedAt)

	// The rehydrated session is now resident and needs no further refresh. A
	// request still carrying the old cookie is handed the rotated one.
	stale := f.guard(context.Background(), c)
	require.NoError(t, stale.err)
	require.Equal(t, 1, f.tokens.RefreshCalls())
	require.Equal(t, "refresh-0-rotated", f.decode(t, sessionCookie(t, stale.recorder)).RefreshToken)

	current := f.guard(context.Background(), sessionCookie(t, res.recorder))
	require.NoError(t, current.err)
	require.Equal(t, 1, f.tokens.RefreshCalls())
	require.False(t, hasSessionCookie(current.recorder))
}

func TestRequire_StaleCookiePresentsLatestRefreshToken(t *testing.T) {
	f := newFixture(t)
	_, c := f.login(t, time.Minute, month)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.guard(context.Background(), c).err)

	f.clock.Advance(2 * time.Hour)
	res := f.guard(context.Background(), c)
	require.NoError(t, res.err)
	require.Equal(t, []string{"refresh-0", "refresh-0-rotated"}, f.tokens.Presented())
	require.Equal(t, "refresh-0-rotated-rotated", f.decode(t, sessionCookie(t, res.recorder)).RefreshToken)
}

func TestRequire_ProviderWithoutRotation(t *testing.T) {
	f := newFixture(t)
	f.tokens.rotate = false
	id, c := f.login(t, time.Minute, month)
	f.clock.Advance(time.Hour)

	res := f.guard(context.Background(), c)
	require.NoError(t, res.err)

	p := f.decode(t, sessionCookie(t, res.recorder))
	require.Equal(t, id, p.SessionID)
	require.Equal(t, "refresh-0", p.RefreshToken)
	requireSameTime(t, f.clock.Now().Add(month), p.RefreshTokenExpiry)
}

func TestRequire_RefreshFailure(t *testing.T) {
	providerErr := fmt.Errorf("%w: invalid_grant", refresh.ErrRefreshFailed)

	t.Run("resident", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.refreshErr = providerErr
		id, c := f.login(t, time.Minute, month)
		f.clock.Advance(2 * time.Minute)

		res := f.guard(context.Background(), c)
		requireReason(t, res.err, auth.ReasonRefreshFailed)
		require.ErrorIs(t, res.err, refresh.ErrRefreshFailed)
		require.False(t, hasSessionCookie(res.recorder))

		rec, ok := f.store.Get(id)
		require.True(t, ok)
		require.Equal(t, "access-0", rec.AccessToken)
	})

	t.Run("not resident", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.refreshErr = providerErr
		id, c := f.login(t, time.Hour, month)
		f.store.Delete(id)

		res := f.guard(context.Background(), c)
		requireReason(t, res.err, auth.ReasonRefreshFailed)
		require.False(t, hasSessionCookie(res.recorder))
		_, ok := f.store.Get(id)
		require.False(t, ok)
	})
}

func TestRequire_SessionEndedDuringRefresh(t *testing.T) {
	f := newFixture(t)
	id, c := f.login(t, time.Minute, month)
	f.clock.Advance(2 * time.Minute)
	f.tokens.beforeReturn = func() { f.store.Delete(id) }

	res := f.guard(context.Background(), c)
	requireReason(t, res.err, auth.ReasonSessionEnded)
	require.ErrorIs(t, res.err, session.ErrSessionNotFound)
	require.False(t, hasSessionCookie(res.recorder))

	_, ok := f.store.Get(id)
	require.False(t, ok)
}

func TestRequire_ConcurrentRefreshIsShared(t *testing.T) {
	for _, resident := range []bool{true, false} {
		t.Run(fmt.Sprintf("resident=%v", resident), func(t *testing.T) {
			f := newFixture(t)
			f.tokens.release = make(chan struct{})
			id, c := f.login(t, time.Minute, month)
			if !resident {
				f.store.Delete(id)
			}
			f.clock.Advance(2 * time.Minute)

			const n = 16
			results := make([]result, n)
			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i] = f.guard(context.Background(), c)
				}()
			}
			time.Sleep(50 * time.Millisecond)
			close(f.tokens.release)
			wg.Wait()

			require.Equal(t, 1, f.tokens.RefreshCalls())
			for _, res := range results {
				require.NoError(t, res.err)
				require.Equal(t, id, res.session.ID)
				require.Equal(t, "access-1", res.session.AccessToken)
				if hasSessionCookie(res.recorder) {
					require.Equal(t, "refresh-0-rotated", f.decode(t, sessionCookie(t, res.recorder)).RefreshToken)
				}
			}
		})
	}
}

func TestRequire_CancelledRequest(t *testing.T) {
	f := newFixture(t)
	f.tokens.started = make(chan struct{}, 1)
	f.tokens.release = make(chan struct{})
	id, c := f.login(t, time.Minute, month)
	f.clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan result, 1)
	go func() { done <- f.guard(ctx, c) }()

	<-f.tokens.started
	cancel()
	res := <-done
	require.ErrorIs(t, res.err, context.Canceled)
	require.False(t, auth.IsUnauthenticated(res.err))
	require.False(t, hasSessionCookie(res.recorder))

	close(f.tokens.release)
	require.Eventually(t, func() bool {
		rec, ok := f.store.Get(id)
		issued, _ := rec.IssuedRefreshToken()
		return ok && rec.AccessToken == "access-1" && issued == "refresh-0-rotated"
	}, time.Second, 10*time.Millisecond)

	t.Run("next request carries the rotated refresh token", func(t *testing.T) {
		next := f.guard(context.Background(), c)
		require.NoError(t, next.err)
		require.Equal(t, 1, f.tokens.RefreshCalls())

		p := f.decode(t, sessionCookie(t, next.recorder))
		require.Equal(t, id, p.SessionID)
		require.Equal(t, "refresh-0-rotated", p.RefreshToken)
		requireSameTime(t, f.clock.Now().Add(month), p.RefreshTokenExpiry)
	})
}

func TestRequire_LogoutDuringRehydration(t *testing.T) {
	f := newFixture(t)
	f.tokens.started = make(chan struct{}, 1)
	f.tokens.release = make(chan struct{})
	id, c := f.login(t, time.Hour, month)
	// Simulates a restart.
	f.store.Delete(id)

	done := make(chan result, 1)
	go func() { done <- f.guard(context.Background(), c) }()
	<-f.tokens.started

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(c)
	f.service.Middleware(f.service.Logout)(httptest.NewRecorder(), logout)

	close(f.tokens.release)
	res := <-done
	requireReason(t, res.err, auth.ReasonSessionEnded)
	require.ErrorIs(t, res.err, session.ErrSessionEnded)
	require.False(t, hasSessionCookie(res.recorder))
	_, ok := f.store.Get(id)
	require.False(t, ok)

	t.Run("replayed cookie does not reach the provider", func(t *testing.T) {
		replay := f.guard(context.Background(), c)
		requireReason(t, replay.err, auth.ReasonSessionEnded)
		require.False(t, hasSessionCookie(replay.recorder))
		require.Equal(t, 1, f.tokens.RefreshCalls())
		require.Zero(t, f.store.Len())
	})
}

func TestRequire_SweeperSkipsInFlightRefresh(t *testing.T) {
	f := newFixture(t)
	f.tokens.started = make(chan struct{}, 1)
	f.tokens.release = make(chan struct{})
	id, c := f.login(t, time.Minute, month)
	f.clock.Advance(2 * time.Minute)

	done := make(chan result, 1)
	go func() { done <- f.guard(context.Background(), c) }()

	<-f.tokens.started
	require.Zero(t, f.store.SweepExpired())
	_, ok := f.store.Get(id)
	require.True(t, ok)

	close(f.tokens.release)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "access-1", res.session.AccessToken)
}
