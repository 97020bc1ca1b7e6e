package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// AUTH
	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthStatus, ChainMiddleware(s.AuthStatusHandler(), s.APIMiddleware()...))

	// API routes (require an authenticated session)
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.RequireSession(s.MeHandler()), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIDevices, ChainMiddleware(s.RequireSession(s.DevicesHandler()), s.APIMiddleware()...))

	// Operational
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	if s.gatherer != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// HealthHandler reports liveness and the resident session count.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"app":      s.appName,
			"sessions": s.store.Len(),
		})
	}
}
