package auth

import (
	"net/http"

	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/jrsteele09/yoto-session-server/metrics"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/rs/zerolog/log"
)

// Middleware classifies the request from its session cookie and binds the
// session id to the request context. It never writes cookies and never fails
// a request; enforcement is left to Require.
func (s *Service) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.classify(r)
		ctx := withRequestState(r.Context(), state)
		if state.Status != Anonymous {
			ctx = session.WithSessionID(ctx, state.Payload.SessionID)
		}
		next(w, r.WithContext(ctx))
	}
}

func (s *Service) classify(r *http.Request) RequestState {
	payload, err := s.jar.Read(r)
	if err != nil {
		if !cookie.IsMissing(err) {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring unreadable session cookie")
			s.metrics.CookieRejected(metrics.ReasonCorrupt)
		}
		return RequestState{Status: Anonymous}
	}

	// Checked before any store lookup: a dead refresh token cannot be rehydrated either.
	if payload.RefreshExpired(s.store.Now()) {
		log.Debug().Str("session", session.ShortID(payload.SessionID)).Msg("session cookie refresh token expired")
		s.metrics.CookieRejected(metrics.ReasonRefreshExpired)
		return RequestState{Status: Anonymous, Payload: payload}
	}

	rec, ok := s.store.Get(payload.SessionID)
	if !ok {
		return RequestState{Status: NotResident, Payload: payload}
	}
	return RequestState{Status: Resident, Payload: payload, Record: rec}
}
