package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// BetService defines the methods that the bet handler requires from the
// service layer.
type BetService interface {
	PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (domain.Bet, error)
	GetBet(ctx context.Context, id string) (domain.Bet, error)
	GetUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error)
}

// BetHandler serves bet placement and per-user bet history.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

// placeBetRequest is the POST body of a bet. Stake and confidence bounds are
// enforced by the service so the domain error codes reach the caller.
type placeBetRequest struct {
	UserID      string `json:"user_id" validate:"required,max=128"`
	Position    string `json:"position" validate:"required"`
	StakeAmount int64  `json:"stake_amount"`
	Confidence  int    `json:"confidence"`
}

type userBetsResponse struct {
	UserID string           `json:"user_id"`
	Bets   []domain.UserBet `json:"bets"`
}

// PlaceBet stakes tokens on one side of a market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	pos, err := domain.ParsePosition(req.Position)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), domain.PlaceBetRequest{
		MarketID:    marketID,
		UserID:      req.UserID,
		Position:    pos,
		StakeAmount: req.StakeAmount,
		Confidence:  req.Confidence,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetBet returns one bet, including its payout once settled.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	bet, err := h.bets.GetBet(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get bet", err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// ListUserBets returns the bets a user has placed, with their markets.
// GET /api/users/{id}/bets?limit=20&offset=0&since=...&until=...
func (h *BetHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "list user bets", err)
		return
	}

	bets, err := h.bets.GetUserBets(r.Context(), userID, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list user bets", err)
		return
	}
	if bets == nil {
		bets = []domain.UserBet{}
	}
	writeJSON(w, http.StatusOK, userBetsResponse{UserID: userID, Bets: bets})
}
