package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictpool/internal/server"
	"github.com/alanyoungcy/predictpool/internal/server/handler"
	"github.com/alanyoungcy/predictpool/internal/server/ws"
	"github.com/alanyoungcy/predictpool/internal/service"
)

const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP API and the WebSocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("server mode: server.enabled is false")
	}

	g, ctx := errgroup.WithContext(ctx)
	svcs := NewServices(deps, a.cfg, a.logger)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// SettleMode runs only the settlement sweeper, which resumes markets that
// were resolved but never fully paid out.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode",
		slog.Duration("sweep_interval", a.cfg.Settlement.SweepInterval.Duration),
	)

	svcs := NewServices(deps, a.cfg, a.logger)
	return svcs.Resolution.RunSweeper(ctx, a.cfg.Settlement.SweepInterval.Duration)
}

// SeedMode inserts the demo markets and returns.
func (a *App) SeedMode(ctx context.Context, deps *Dependencies) error {
	svcs := NewServices(deps, a.cfg, a.logger)
	n, err := svcs.Markets.Seed(ctx, service.DefaultSeedMarkets())
	if err != nil {
		return fmt.Errorf("seed mode: %w", err)
	}
	a.logger.InfoContext(ctx, "seed complete", slog.Int("created", n))
	return nil
}

// FullMode runs the HTTP server and the settlement sweeper side by side.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := NewServices(deps, a.cfg, a.logger)

	g.Go(func() error {
		return svcs.Resolution.RunSweeper(ctx, a.cfg.Settlement.SweepInterval.Duration)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *Services) {
	hub := ws.NewHub(deps.Bus, deps.Metrics, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		ResolverSecret: a.cfg.Server.ResolverSecret,
		RateLimit:      a.cfg.Server.RateLimit,
		RateWindow:     a.cfg.Server.RateWindow.Duration,
		TrustProxy:     a.cfg.Server.TrustProxy,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Markets:     handler.NewMarketHandler(svcs.Markets, a.logger),
		Bets:        handler.NewBetHandler(svcs.Bets, a.logger),
		Resolution:  handler.NewResolutionHandler(svcs.Resolution, a.logger),
		Leaderboard: handler.NewLeaderboardHandler(svcs.Leaderboard, a.logger),
		Audit:       handler.NewAuditHandler(deps.Audit, a.logger),
	}, server.Deps{
		Hub:     hub,
		Limiter: deps.Limiter,
		Metrics: deps.Metrics,
	}, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; write endpoints are unauthenticated and /api/audit is disabled")
	}
	if a.cfg.Server.ResolverSecret == "" {
		a.logger.WarnContext(ctx, "server.resolver_secret is empty; resolve and resume are disabled")
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
