package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictpool/internal/crypto"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/metrics"
	"github.com/alanyoungcy/predictpool/internal/server/handler"
	"github.com/alanyoungcy/predictpool/internal/server/middleware"
	"github.com/alanyoungcy/predictpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, authentication is disabled
	ResolverSecret string // if empty, resolve and resume are refused
	RateLimit      int    // bets per client per RateWindow; 0 disables
	RateWindow     time.Duration
	// TrustProxy keys rate limits on X-Real-IP / X-Forwarded-For. Enable it
	// only when a reverse proxy in front of the server sets those headers.
	TrustProxy bool
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Bets        *handler.BetHandler
	Resolution  *handler.ResolutionHandler
	Leaderboard *handler.LeaderboardHandler
	Audit       *handler.AuditHandler // optional
}

// Deps are the optional collaborators of the server. Nil fields disable the
// matching feature.
type Deps struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
	Metrics *metrics.Metrics
}

// Server is the HTTP + WebSocket API of the prediction engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Requests pass CORS first, then logging, then API key auth.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, deps, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed and wrapped http.Handler without binding a
// listener.
func NewHandler(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	resolver := middleware.ResolverAuth(&crypto.ResolverAuth{Secret: cfg.ResolverSecret}, logger)
	betLimit := middleware.RateLimit(deps.Limiter, middleware.RateLimitConfig{
		Scope:      "bets",
		Limit:      cfg.RateLimit,
		Window:     cfg.RateWindow,
		TrustProxy: cfg.TrustProxy,
	}, logger)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/upcoming", handlers.Markets.ListUpcoming)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/slug/{slug}", handlers.Markets.GetMarketBySlug)

	mux.Handle("POST /api/markets/{id}/bets", betLimit(http.HandlerFunc(handlers.Bets.PlaceBet)))
	mux.HandleFunc("GET /api/bets/{id}", handlers.Bets.GetBet)
	mux.HandleFunc("GET /api/users/{id}/bets", handlers.Bets.ListUserBets)

	mux.Handle("POST /api/markets/{id}/resolve", resolver(http.HandlerFunc(handlers.Resolution.Resolve)))
	mux.Handle("POST /api/markets/{id}/resume", resolver(http.HandlerFunc(handlers.Resolution.Resume)))
	mux.HandleFunc("GET /api/settlements/{id}", handlers.Resolution.Settlement)

	mux.HandleFunc("GET /api/leaderboard", handlers.Leaderboard.Top)
	mux.HandleFunc("GET /api/leaderboard/{userID}", handlers.Leaderboard.Get)

	if handlers.Audit != nil {
		mux.Handle("GET /api/audit", middleware.RequireKey(cfg.APIKey)(http.HandlerFunc(handlers.Audit.List)))
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger, deps.Metrics)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
