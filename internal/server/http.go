// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"camp-auth/backend/internal/ceremony"
	ceremonyhandler "camp-auth/backend/internal/ceremony/handler"
	"camp-auth/backend/internal/devotp"
	devotphandler "camp-auth/backend/internal/devotp/handler"
	"camp-auth/backend/internal/health"
	healthhandler "camp-auth/backend/internal/health/handler"
	"camp-auth/backend/internal/mfa"
	mfahandler "camp-auth/backend/internal/mfa/handler"
	"camp-auth/backend/internal/server/middleware"
	"camp-auth/backend/internal/session"
	sessionhandler "camp-auth/backend/internal/session/handler"
	telemetryotel "camp-auth/backend/internal/telemetry/otel"
)

// Deps holds the services behind the HTTP routes.
type Deps struct {
	Ceremonies *ceremony.Service
	Codes      *mfa.Service
	Sessions   *session.Service
	Health     *health.Checker
	// DevOTP is the dev-only code store behind GET /dev/otp. If nil, the route is not registered.
	DevOTP  devotp.Store
	Metrics *telemetryotel.Metrics
	Log     *slog.Logger

	// TrustProxyHeaders takes the client IP from X-Forwarded-For and X-Real-IP. Set it only
	// when every request arrives through a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// NewRouter returns the HTTP API.
//
// Route → handler mapping:
//   - /webauthn/*     → internal/ceremony/handler
//   - /otp/*          → internal/mfa/handler
//   - /session/{kind} → internal/session/handler
//   - /dev/otp        → internal/devotp/handler (dev mode only)
//   - /livez, /readyz → internal/health/handler
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.CSP)
	if deps.TrustProxyHeaders {
		mux.Use(chimw.RealIP)
	}
	mux.Use(middleware.RequestContext)
	mux.Use(middleware.Telemetry(deps.Metrics))
	mux.Use(func(next http.Handler) http.Handler {
		return httplogger.LoggingMiddlewareSlog(log, next)
	})

	healthhandler.NewHTTPHandler(deps.Health, log).RegisterRoutes(mux)
	ceremonyhandler.NewHandler(deps.Ceremonies, log).RegisterRoutes(mux)
	mfahandler.NewHandler(deps.Codes, deps.Sessions, log).RegisterRoutes(mux)
	sessionhandler.NewHandler(deps.Sessions, log).RegisterRoutes(mux)
	if deps.DevOTP != nil {
		log.Warn("dev OTP mode enabled: GET /dev/otp exposes issued codes")
		devotphandler.NewHandler(deps.DevOTP, log).RegisterRoutes(mux)
	}
	return mux
}

// HTTPServerConfig configures the HTTP listener and its shutdown.
type HTTPServerConfig struct {
	ListenAddr string
	Log        *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// HTTPServer runs the router until Shutdown.
type HTTPServer struct {
	cfg     *HTTPServerConfig
	log     *slog.Logger
	checker *health.Checker
	srv     *http.Server
}

// NewHTTPServer returns a server for handler. checker is drained on Shutdown.
func NewHTTPServer(cfg *HTTPServerConfig, handler http.Handler, checker *health.Checker) *HTTPServer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &HTTPServer{
		cfg:     cfg,
		log:     log,
		checker: checker,
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// RunInBackground starts listening in a goroutine. Listener failures are logged and sent on
// the returned channel.
func (s *HTTPServer) RunInBackground() <-chan error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "listenAddress", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "err", err)
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Shutdown marks the process not ready, waits DrainDuration for load balancers to notice,
// then stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown() {
	if s.checker != nil && s.checker.Drain() && s.cfg.DrainDuration > 0 {
		s.log.Info("Server marked as not ready", "drain", s.cfg.DrainDuration)
		time.Sleep(s.cfg.DrainDuration)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		s.log.Info("HTTP server gracefully stopped")
	}
}
