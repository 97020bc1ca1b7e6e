package auth

import (
	"net/http"

	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/rs/zerolog/log"
)

// Login exchanges an authorization code for tokens, creates the session and
// sets its cookie. The refresh token is granted the cookie's lifetime.
func (s *Service) Login(w http.ResponseWriter, r *http.Request, code string) (*Session, error) {
	tokens, err := s.tokens.Exchange(r.Context(), code)
	if err != nil {
		log.Warn().Err(err).Msg("authorization code exchange failed")
		return nil, unauthenticated(ReasonExchangeFailed, err)
	}

	refreshExpiry := s.store.Now().Add(s.jar.MaxAge())
	id, payload, err := s.store.Create(tokens.AccessToken, tokens.AccessTokenExpiry, tokens.RefreshToken, refreshExpiry)
	if err != nil {
		return nil, err
	}
	if err := s.jar.Write(w, payload); err != nil {
		s.store.Delete(id)
		return nil, err
	}

	return s.sessionFor(session.Record{
		ID:                id,
		AccessToken:       tokens.AccessToken,
		AccessTokenExpiry: tokens.AccessTokenExpiry,
		CreatedAt:         payload.CreatedAt,
	}), nil
}

// Logout forgets the request's session and clears the cookie. A request
// without a session, or with one already gone, still gets the cookie cleared.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := session.SessionIDFromContext(r.Context())
	if !ok {
		if payload, err := s.jar.Read(r); err == nil {
			id, ok = payload.SessionID, true
		}
	}
	if ok {
		s.store.End(id)
		if s.clients != nil {
			s.clients.Remove(id)
		}
	}
	s.jar.Clear(w)
}
