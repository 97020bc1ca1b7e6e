package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/yoto-session-server/apiclient"
	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/rs/zerolog"
)

// SessionHandler is a handler that runs only for authenticated requests.
type SessionHandler func(w http.ResponseWriter, r *http.Request, sess *auth.Session)

// RequireSession resolves the caller's session before invoking next,
// refreshing or rehydrating it as needed.
func (s *Server) RequireSession(next SessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.auth.Require(w, r)
		if err != nil {
			renderError(w, r, err)
			return
		}
		next(w, r, sess)
	}
}

type meResponse struct {
	Session           string    `json:"session"`
	CreatedAt         time.Time `json:"created_at"`
	AgeSeconds        int64     `json:"age_seconds"`
	AccessTokenExpiry time.Time `json:"access_token_expiry"`
}

func (s *Server) MeHandler() SessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
		now := s.store.Now()
		writeJSON(w, http.StatusOK, meResponse{
			Session:           session.ShortID(sess.ID),
			CreatedAt:         sess.CreatedAt,
			AgeSeconds:        int64(now.Sub(sess.CreatedAt) / time.Second),
			AccessTokenExpiry: sess.AccessTokenExpiry,
		})
	}
}

// DevicesHandler proxies the caller's device list from the downstream API.
func (s *Server) DevicesHandler() SessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
		if sess.Client == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "api_unavailable"})
			return
		}

		var devices json.RawMessage
		if err := sess.Client.GetJSON(r.Context(), devicesPath, &devices); err != nil {
			var statusErr *apiclient.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
				// The provider revoked the token before its stated expiry.
				renderError(w, r, &auth.UnauthenticatedError{Reason: "api rejected access token", Cause: err})
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("device list request failed")
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream_error"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(devices)
	}
}
