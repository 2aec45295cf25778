// Package httpapi exposes the bridge over HTTP: the webhook endpoint, the
// auth endpoints, health, and Prometheus metrics.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/smsbridge/internal/logging"
	"github.com/dmitrijs2005/smsbridge/internal/server/authn"
	"github.com/dmitrijs2005/smsbridge/internal/server/config"
	"github.com/dmitrijs2005/smsbridge/internal/server/metrics"
	"github.com/dmitrijs2005/smsbridge/internal/server/services"
)

type Server struct {
	address string
	logger  logging.Logger
	users   *services.UserService
	sms     *services.SMSService
	auth    *authn.Service
	metrics metrics.Metrics

	// health/config snapshot
	dedupWindowSeconds int
	policy             authn.Policy
	telegramConfigured bool

	metricsHandler http.Handler
}

func NewServer(cfg *config.Config, l logging.Logger, us *services.UserService,
	ss *services.SMSService, as *authn.Service, mtr metrics.Metrics) *Server {
	return &Server{
		address: cfg.EndpointAddr,
		logger:  l.With("module", "http_server"),
		users:   us,
		sms:     ss,
		auth:    as,
		metrics: mtr,

		dedupWindowSeconds: cfg.DedupWindowSeconds,
		policy: authn.Policy{
			AuthRequired:        cfg.AuthRequired,
			AllowSecretFallback: cfg.AllowSecretFallback,
			AllowLegacySecret:   cfg.AllowLegacySecret,
			HMACWindowSeconds:   cfg.HMACWindowSeconds,
		},
		telegramConfigured: cfg.BotToken != "" && cfg.ChatID != "",

		metricsHandler: metrics.Handler(),
	}
}

// Handler builds the chi router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Post("/sms/incoming", s.handleIncoming)

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
