package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/rs/zerolog"
)

func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorCode string) {
	fullPath := path + "?error=" + url.QueryEscape(errorCode)
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// renderError is the one place errors from protected handlers become responses.
// Unauthenticated requests get a uniform "log in again" answer; htmx callers
// are sent to the login page instead.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; nobody is reading the response.
		logger.Debug().Err(err).Msg("request cancelled")
	case auth.IsUnauthenticated(err):
		logger.Info().Err(err).Msg("unauthenticated request")
		if isHTMXRequest(r) {
			w.Header().Set("HX-Redirect", RouteAuthPage)
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:            "unauthenticated",
			ErrorDescription: sessionExpiredMessage,
		})
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}
}
