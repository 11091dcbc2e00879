package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, in domain.NewMarket) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.MarketView, error)
	GetMarketBySlug(ctx context.Context, slug string) (domain.MarketDetail, error)
	ListOpen(ctx context.Context, category *domain.Category, limit int) ([]domain.MarketView, error)
	ListUpcoming(ctx context.Context, limit int) ([]domain.MarketView, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output.
type listMarketsResponse struct {
	Markets []domain.MarketView `json:"markets"`
	Count   int                 `json:"count"`
}

// createMarketRequest is the POST body for a new market. Category and date
// are checked by the service once parsed.
type createMarketRequest struct {
	Slug               string    `json:"slug" validate:"omitempty,max=80"`
	Title              string    `json:"title" validate:"required,max=200"`
	Description        string    `json:"description" validate:"max=4000"`
	Category           string    `json:"category" validate:"required"`
	TargetEntity       *string   `json:"target_entity,omitempty" validate:"omitempty,max=200"`
	TargetMetric       *string   `json:"target_metric,omitempty" validate:"omitempty,max=200"`
	TargetValue        *float64  `json:"target_value,omitempty"`
	ResolutionCriteria string    `json:"resolution_criteria" validate:"max=2000"`
	ResolutionDate     time.Time `json:"resolution_date" validate:"required"`
	CreatedBy          string    `json:"created_by" validate:"required,max=128"`
	IsExpert           bool      `json:"is_expert_prediction"`
}

// ListMarkets returns open markets, newest first.
// GET /api/markets?category=trend&limit=20
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	var category *domain.Category
	if v := r.URL.Query().Get("category"); v != "" {
		c, err := domain.ParseCategory(v)
		if err != nil {
			writeDomainError(w, r, h.logger, "list markets", err)
			return
		}
		category = &c
	}

	markets, err := h.markets.ListOpen(r.Context(), category, parseLimit(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Count: len(markets)})
}

// ListUpcoming returns open markets whose resolution date is still ahead,
// soonest first.
// GET /api/markets/upcoming?limit=10
func (h *MarketHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListUpcoming(r.Context(), parseLimit(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list upcoming markets", err)
		return
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Count: len(markets)})
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), domain.NewMarket{
		Slug:               req.Slug,
		Title:              req.Title,
		Description:        req.Description,
		Category:           category,
		TargetEntity:       req.TargetEntity,
		TargetMetric:       req.TargetMetric,
		TargetValue:        req.TargetValue,
		ResolutionCriteria: req.ResolutionCriteria,
		ResolutionDate:     req.ResolutionDate,
		CreatedBy:          req.CreatedBy,
		IsExpert:           req.IsExpert,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m.View())
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetMarketBySlug returns a market together with all of its bets.
// GET /api/markets/slug/{slug}
func (h *MarketHandler) GetMarketBySlug(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing market slug")
		return
	}

	detail, err := h.markets.GetMarketBySlug(r.Context(), slug)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
