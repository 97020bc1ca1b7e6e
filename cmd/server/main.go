package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/yoto-session-server/apiclient"
	"github.com/jrsteele09/yoto-session-server/auth"
	"github.com/jrsteele09/yoto-session-server/cookie"
	"github.com/jrsteele09/yoto-session-server/internal/config"
	"github.com/jrsteele09/yoto-session-server/metrics"
	"github.com/jrsteele09/yoto-session-server/server"
	"github.com/jrsteele09/yoto-session-server/session"
	"github.com/jrsteele09/yoto-session-server/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c := config.New()
	setupLogging(c)

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	app, store, err := build(c)
	if err != nil {
		return err
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go app.sweeper.Run(sweepCtx)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           app.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}

	log.Info().Int("sessions", store.Len()).Msg("Shutting down, in-memory sessions will be rehydrated from cookies on restart")
	return shutdown(httpServer)
}

type components struct {
	server  *server.Server
	sweeper *session.Sweeper
}

func build(c config.Config) (components, *session.Store, error) {
	key, err := config.LoadSessionKey(c)
	if err != nil {
		return components{}, nil, err
	}
	if err := config.ValidateOAuth(c); err != nil {
		if !c.IsDev() {
			return components{}, nil, err
		}
		log.Warn().Err(err).Msg("OAuth is not fully configured, logins will fail")
	}

	codec, err := cookie.NewCodec(key)
	if err != nil {
		return components{}, nil, fmt.Errorf("cookie.NewCodec: %w", err)
	}
	jar := cookie.NewJar(codec, cookie.Settings{
		Name:   c.GetSessionCookieName(),
		Secure: c.GetSessionCookieSecure(),
		MaxAge: c.GetSessionCookieMaxAge(),
	})
	if !c.GetSessionCookieSecure() && !c.IsDev() {
		log.Warn().Msg("Session cookie Secure flag is off outside DEV")
	}

	tokenURL := c.GetTokenURL()
	if issuer := c.GetIssuerURL(); issuer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), c.GetRefreshTimeout())
		discovered, err := refresh.DiscoverTokenURL(ctx, issuer)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("token_url", tokenURL).Msg("OIDC discovery failed, using configured token URL")
		} else {
			tokenURL = discovered
		}
	}

	store := session.NewStore(
		session.WithExpirySkew(c.GetAccessExpirySkew()),
		session.WithEndedTTL(max(session.DefaultEndedTTL, 2*c.GetRefreshTimeout())),
	)
	clients := apiclient.NewCache(c.GetAPIBaseURL(), c.GetAPITimeout())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry, store.Len)
	if err != nil {
		return components{}, nil, fmt.Errorf("metrics.New: %w", err)
	}

	service := auth.New(auth.Config{
		Store: store,
		Jar:   jar,
		Tokens: refresh.NewClient(refresh.Config{
			ClientID:         c.GetClientID(),
			ClientSecret:     c.GetClientSecret(),
			TokenURL:         tokenURL,
			RedirectURL:      c.GetRedirectURL(),
			Timeout:          c.GetRefreshTimeout(),
			DefaultAccessTTL: c.GetDefaultAccessTokenExpiry(),
		}),
		Clients:        clients,
		Metrics:        m,
		RefreshTimeout: c.GetRefreshTimeout(),
	})

	srv, err := server.New(c, server.Deps{Auth: service, Store: store, Gatherer: registry})
	if err != nil {
		return components{}, nil, err
	}

	sweeper := session.NewSweeper(store, c.GetSessionSweepInterval(), func(removed int) {
		m.Swept(removed)
		if pruned := clients.Prune(func(id string) bool {
			_, ok := store.Get(id)
			return ok
		}); pruned > 0 {
			log.Debug().Int("clients", pruned).Msg("Dropped api clients of swept sessions")
		}
	})

	log.Info().
		Str("env", c.GetEnv()).
		Str("token_url", tokenURL).
		Str("cookie", c.GetSessionCookieName()).
		Dur("cookie_max_age", c.GetSessionCookieMaxAge()).
		Msg("Session server configured")

	return components{server: srv, sweeper: sweeper}, store, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
