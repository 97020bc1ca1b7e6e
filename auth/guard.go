package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/jrsteele09/yoto-session-server/metrics"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/rs/zerolog/log"
)

// Require resolves a usable access token for the request. An expired or
// non-resident session is renewed from its refresh token and the rotated
// cookie is written to w, as it is for any request whose cookie lags the
// latest issued refresh token. Failures are *UnauthenticatedError, except
// when the request itself was cancelled, which returns the context error and
// writes nothing.
func (s *Service) Require(w http.ResponseWriter, r *http.Request) (*Session, error) {
	state, ok := StateFromContext(r.Context())
	if !ok {
		state = s.classify(r)
	}

	switch state.Status {
	case Anonymous:
		if state.Payload.SessionID != "" {
			return nil, unauthenticated(ReasonRefreshExpired, nil)
		}
		return nil, unauthenticated(ReasonNoCookie, nil)
	case Resident:
		if !s.store.IsAccessExpired(state.Record) {
			if err := s.syncCookie(w, state.Payload, state.Record, false); err != nil {
				return nil, err
			}
			return s.sessionFor(state.Record), nil
		}
	}

	outcome, err := s.refresh(r.Context(), state.Payload)
	if err != nil {
		return nil, err
	}
	if err := r.Context().Err(); err != nil {
		return nil, err
	}
	if s.store.Ended(state.Payload.SessionID) {
		return nil, unauthenticated(ReasonSessionEnded, session.ErrSessionEnded)
	}

	if err := s.syncCookie(w, state.Payload, outcome.record, outcome.renewed); err != nil {
		return nil, err
	}
	return s.sessionFor(outcome.record), nil
}

// syncCookie writes the record's latest refresh credential to w when the
// request's cookie is behind it, or always when force is set.
func (s *Service) syncCookie(w http.ResponseWriter, payload cookie.Payload, rec session.Record, force bool) error {
	token, expiry := rec.IssuedRefreshToken()
	if token == "" || (!force && token == payload.RefreshToken) {
		return nil
	}
	if err := s.jar.Write(w, payload.Rotate(token, expiry)); err != nil {
		log.Error().Err(err).Str("session", session.ShortID(payload.SessionID)).Msg("failed to write rotated session cookie")
		return unauthenticated(ReasonRefreshFailed, err)
	}
	return nil
}

type refreshOutcome struct {
	record session.Record
	// renewed is false when a concurrent refresh had already renewed the record.
	renewed bool
}

// refresh renews the session's access token at most once at a time per
// session id. The provider call is detached from ctx so a cancelled request
// cannot abort work other requests for the same session are waiting on.
func (s *Service) refresh(ctx context.Context, payload cookie.Payload) (refreshOutcome, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(payload.SessionID, func() (any, error) {
		return s.runRefresh(detached, payload)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return refreshOutcome{}, res.Err
		}
		return res.Val.(refreshOutcome), nil
	case <-ctx.Done():
		log.Debug().Str("session", session.ShortID(payload.SessionID)).Msg("request cancelled while refresh in flight")
		return refreshOutcome{}, ctx.Err()
	}
}

func (s *Service) runRefresh(ctx context.Context, payload cookie.Payload) (refreshOutcome, error) {
	id := payload.SessionID
	s.store.BeginRefresh(id)
	defer s.store.EndRefresh(id)

	rec, resident := s.store.Get(id)
	if resident && !s.store.IsAccessExpired(rec) {
		return refreshOutcome{record: rec}, nil
	}
	if s.store.Ended(id) {
		return refreshOutcome{}, unauthenticated(ReasonSessionEnded, session.ErrSessionEnded)
	}

	ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()

	// A resident record may know a newer refresh token than this request's cookie.
	presented := payload.RefreshToken
	if issued, _ := rec.IssuedRefreshToken(); resident && issued != "" {
		presented = issued
	}

	start := time.Now()
	tokens, err := s.tokens.Refresh(ctx, presented)
	if err != nil {
		log.Warn().Err(err).
			Str("session", session.ShortID(id)).
			Bool("resident", resident).
			Dur("elapsed", time.Since(start)).
			Msg("token refresh failed")
		s.countRefresh(resident, metrics.OutcomeFailure)
		return refreshOutcome{}, unauthenticated(ReasonRefreshFailed, err)
	}

	if resident {
		err = s.store.UpdateAccessToken(id, tokens.AccessToken, tokens.AccessTokenExpiry)
	} else {
		_, err = s.store.Rehydrate(id, tokens.AccessToken, tokens.AccessTokenExpiry, payload.CreatedAt)
	}
	if err == nil {
		rec, err = s.store.SetRefreshToken(id, tokens.RefreshToken, s.store.Now().Add(s.jar.MaxAge()))
	}
	if err != nil {
		s.countRefresh(resident, metrics.OutcomeFailure)
		return refreshOutcome{}, unauthenticated(ReasonSessionEnded, err)
	}
	if s.clients != nil {
		s.clients.UpdateToken(id, tokens.AccessToken, tokens.AccessTokenExpiry)
	}

	s.countRefresh(resident, metrics.OutcomeSuccess)
	log.Info().
		Str("session", session.ShortID(id)).
		Bool("resident", resident).
		Bool("rotated", tokens.RefreshToken != presented).
		Time("access_expiry", tokens.AccessTokenExpiry).
		Dur("elapsed", time.Since(start)).
		Msg("renewed session access token")

	return refreshOutcome{record: rec, renewed: true}, nil
}

func (s *Service) countRefresh(resident bool, outcome string) {
	if resident {
		s.metrics.Refresh(outcome)
		return
	}
	s.metrics.Rehydrate(outcome)
}
