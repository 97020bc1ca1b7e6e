package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/rs/zerolog"
)

// OAuthCallbackHandler completes a login: it checks the CSRF state against the
// cookie planted when the redirect was started, exchanges the code and sets
// the session cookie.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		query := r.URL.Query()

		expected := ""
		if c, err := r.Cookie(oauthStateCookieName); err == nil {
			expected = c.Value
		}
		clearStateCookie(w)

		state := query.Get("state")
		if state == "" || expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
			logger.Warn().Msg("state mismatch in oauth callback")
			redirectWithError(w, r, RouteAuthPage, "invalid_state")
			return
		}

		if errorParam := query.Get("error"); errorParam != "" {
			logger.Warn().Str("error", errorParam).Str("description", query.Get("error_description")).Msg("authorization denied")
			redirectWithError(w, r, RouteAuthPage, errorParam)
			return
		}

		code := query.Get("code")
		if code == "" {
			redirectWithError(w, r, RouteAuthPage, "no_code")
			return
		}

		sess, err := s.auth.Login(w, r, code)
		if err != nil {
			logger.Error().Err(err).Msg("login failed")
			redirectWithError(w, r, RouteAuthPage, "token_exchange_failed")
			return
		}

		logger.Info().Str("session", session.ShortID(sess.ID)).Msg("login successful")
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// StateCookieMaxAge bounds how long a started login may take to come back.
const StateCookieMaxAge = 10 * time.Minute

// StateCookie is the cookie a login initiator sets next to the authorization
// redirect carrying state. OAuthCallbackHandler checks and clears it.
func StateCookie(state string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(StateCookieMaxAge / time.Second),
	}
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// LogoutHandler ends the session and sends the browser back to the login page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Logout(w, r)
		if isHTMXRequest(r) {
			w.Header().Set("HX-Redirect", RouteAuthPage)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, RouteAuthPage, http.StatusSeeOther)
	}
}

type authStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status"`
}

// AuthStatusHandler reports whether the request carries a usable session
// cookie. It does not refresh or rehydrate anything.
func (s *Server) AuthStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, _ := auth.StateFromContext(r.Context())
		writeJSON(w, http.StatusOK, authStatusResponse{
			Authenticated: state.Status != auth.Anonymous,
			Status:        state.Status.String(),
		})
	}
}
