package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// ResolutionService defines the methods that the resolution handler requires
// from the service layer.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID string, outcome domain.Position) (domain.SettlementSummary, error)
	Resume(ctx context.Context, marketID string) (domain.SettlementSummary, error)
	Settlement(ctx context.Context, marketID string) (domain.SettlementReport, error)
}

// ResolutionHandler serves the privileged resolve and resume endpoints along
// with the public settlement report.
type ResolutionHandler struct {
	resolution ResolutionService
	logger     *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(resolution ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{resolution: resolution, logger: logger}
}

type resolveRequest struct {
	Outcome string `json:"outcome" validate:"required"`
}

// Resolve declares the outcome of a market and settles every bet on it.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "resolve market", err)
		return
	}
	outcome, err := domain.ParsePosition(req.Outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve market", err)
		return
	}

	summary, err := h.resolution.Resolve(r.Context(), marketID, outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve market", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
	)
	writeJSON(w, http.StatusOK, summary)
}

// Resume finishes settlement of a market whose resolution was interrupted.
// POST /api/markets/{id}/resume
func (h *ResolutionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	summary, err := h.resolution.Resume(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, r, h.logger, "resume settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Settlement returns the settlement report of a resolved market.
// GET /api/settlements/{id}
func (h *ResolutionHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	report, err := h.resolution.Settlement(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
