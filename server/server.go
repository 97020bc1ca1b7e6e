// Package server is the HTTP surface of the session server.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/jrsteele09/yoto-session-server/internal/config"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	appName  string
	mux      *http.ServeMux
	routes   []string
	auth     *auth.Service
	store    *session.Store
	gatherer prometheus.Gatherer
}

// Deps are the components the HTTP handlers are built on.
type Deps struct {
	Auth  *auth.Service
	Store *session.Store
	// Gatherer backs the metrics route. Nil disables it.
	Gatherer prometheus.Gatherer
}

func New(cfg config.EnvConfig, deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Store == nil {
		return nil, fmt.Errorf("[Server New] auth service and session store are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		appName:  cfg.GetAppName(),
		mux:      http.NewServeMux(),
		auth:     deps.Auth,
		store:    deps.Store,
		gatherer: deps.Gatherer,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}
