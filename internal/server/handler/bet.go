package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
	"github.com/chigozzdevv/tossr/internal/server/middleware"
)

type BetEngine interface {
	PlaceBet(ctx context.Context, caller string, key domain.RoundKey, req engine.BetRequest) (domain.Bet, error)
	SettleBet(ctx context.Context, caller string, key domain.RoundKey, user string) (domain.Bet, error)
}

type BetReader interface {
	Bets(ctx context.Context, key domain.RoundKey, viewer string) ([]domain.Bet, error)
	Bet(ctx context.Context, key domain.BetKey) (domain.Bet, error)
}

// BetHandler serves bet placement, settlement and lookups.
type BetHandler struct {
	engine BetEngine
	reader BetReader
	logger *slog.Logger
}

func NewBetHandler(engine BetEngine, reader BetReader, logger *slog.Logger) *BetHandler {
	return &BetHandler{engine: engine, reader: reader, logger: logger}
}

// PlaceBet stakes the caller on a selection.
// POST /api/markets/{market}/rounds/{number}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req engine.BetRequest
	if !decode(w, r, &req) {
		return
	}
	bet, err := h.engine.PlaceBet(r.Context(), who, key, req)
	if err != nil {
		writeDomainError(w, r, h.logger, "place_bet", err)
		return
	}
	okJSON(w, "place_bet", http.StatusCreated, bet)
}

// ListBets returns a round's bets, subject to its permission group.
// GET /api/markets/{market}/rounds/{number}/bets
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	bets, err := h.reader.Bets(r.Context(), key, middleware.CallerFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, h.logger, "list_bets", err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

// GetBet returns one user's bet.
// GET /api/markets/{market}/rounds/{number}/bets/{user}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	bet, err := h.reader.Bet(r.Context(), domain.BetKey{Round: key, User: r.PathValue("user")})
	if err != nil {
		writeDomainError(w, r, h.logger, "get_bet", err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// SettleBet evaluates and pays one bet.
// POST /api/markets/{market}/rounds/{number}/bets/{user}/settle
func (h *BetHandler) SettleBet(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	bet, err := h.engine.SettleBet(r.Context(), who, key, r.PathValue("user"))
	if err != nil {
		writeDomainError(w, r, h.logger, "settle_bet", err)
		return
	}
	okJSON(w, "settle_bet", http.StatusOK, bet)
}
