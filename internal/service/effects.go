package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
)

// effects bundles the best-effort side channels every service writes to after
// a committed change. None of them can fail the engine operation; failures
// are logged and dropped. Any field may be nil.
type effects struct {
	component string
	cache     domain.MarketCache
	bus       domain.EventPublisher
	audit     domain.AuditStore
	logger    *slog.Logger
}

func (e effects) publish(ctx context.Context, channel, eventType string, data any, at time.Time) {
	if e.bus == nil {
		return
	}
	payload, err := events.Encode(eventType, data, at)
	if err == nil {
		err = e.bus.Publish(ctx, channel, payload)
	}
	if err != nil {
		e.logger.WarnContext(ctx, e.component+": publish event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (e effects) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, e.component+": audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e effects) invalidate(ctx context.Context, marketID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, marketID); err != nil {
		// The entry expires on its own.
		e.logger.WarnContext(ctx, e.component+": cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// refresh writes a post-commit snapshot through to the cache. The cache keeps
// the newest revision it has seen, so a concurrent read-through that loaded
// an older row cannot replace it. On failure the entry is dropped instead.
func (e effects) refresh(ctx context.Context, m domain.Market) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, m); err != nil {
		e.logger.WarnContext(ctx, e.component+": cache refresh failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		e.invalidate(ctx, m.ID)
	}
}
