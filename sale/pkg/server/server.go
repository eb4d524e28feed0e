// Package server exposes the campaign over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/stagesale/sale/pkg/campaign"
	"github.com/malbeclabs/stagesale/sale/pkg/clickhouse"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
)

// EventStore serves signal history older than the in-memory log retains.
type EventStore interface {
	Since(ctx context.Context, after uint64, limit int) ([]events.Signal, error)
}

// ActivityReader serves aggregated sale activity.
type ActivityReader interface {
	Totals(ctx context.Context) ([]clickhouse.KindTotal, error)
}

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Service *campaign.Service
	Events  *events.Log

	// Optional backends.
	Store    EventStore
	Activity ActivityReader

	// Checks run on /readyz, keyed by name.
	Checks map[string]func(context.Context) error

	ListenAddr     string
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int

	Version string
	Commit  string
	Date    string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Service == nil {
		return errors.New("service is required")
	}
	if cfg.Events == nil {
		return errors.New("event log is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Every(time.Minute / 60)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	router  *chi.Mux
	limiter *RateLimiter
	srv     *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		router:  chi.NewRouter(),
		limiter: NewRateLimiter(cfg.Clock, cfg.RateLimit, cfg.RateBurst),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Limiter returns the rate limiter guarding mutating public routes.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", CallerHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/version", s.handleVersion)

	r.Route("/api", func(r chi.Router) {
		r.Get("/campaign", s.handleStatus)
		r.Get("/balances/{address}", s.handleBalances)
		r.Get("/referrals/{advertiser}", s.handleReferral)
		r.Get("/channels", s.handleChannels)
		r.Get("/channels/{channel}", s.handleChannel)
		r.Get("/timelocks", s.handleGrants)
		r.Get("/timelocks/{grant}", s.handleGrant)
		r.Get("/events", s.handleEvents)
		r.Get("/stats/activity", s.handleActivity)

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.limiter))
			r.Post("/purchases", s.handlePurchase)
			r.Post("/transfers", s.handleTransfer)
			r.Post("/refunds", s.handleRefund)
			r.Post("/timelocks/{grant}/release", s.handleRelease)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/stages", s.handleStartStage)
			r.Delete("/stages/current", s.handleStopStage)
			r.Post("/mints", s.handleMint)
			r.Post("/timelock-mints", s.handleTimelockMint)
			r.Post("/referrals", s.handleCreateReferral)
			r.Delete("/referrals/{advertiser}", s.handleRemoveReferral)
			r.Delete("/channels/{channel}", s.handleRemoveChannel)
			r.Post("/vault/claim", s.handleClaimVault)
			r.Post("/finalize", s.handleFinalize)
			r.Post("/ownership", s.handleOwnership)
			r.Post("/credits", s.handleCredit)
		})
	})
}

func (s *Server) Start() error {
	s.log.Info("server: starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server: shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// PruneLoop drops idle rate limiter entries until ctx is done.
func (s *Server) PruneLoop(ctx context.Context, interval time.Duration) error {
	ticker := s.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.limiter.Prune()
		}
	}
}
