package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// LeaderboardService defines the read methods the leaderboard handler needs.
type LeaderboardService interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	Get(ctx context.Context, userID string) (domain.LeaderboardEntry, error)
}

// LeaderboardHandler serves prediction leaderboard endpoints.
type LeaderboardHandler struct {
	board  LeaderboardService
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(board LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, logger: logger}
}

type leaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// Top returns the best predictors ordered by accuracy, then total profit.
// GET /api/leaderboard?limit=20
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	entries, err := h.board.Top(r.Context(), parseLimit(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "get leaderboard", err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Entries: entries})
}

// Get returns one user's leaderboard record.
// GET /api/leaderboard/{userID}
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	entry, err := h.board.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get leaderboard entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
