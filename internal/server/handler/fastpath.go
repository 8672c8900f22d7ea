package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/outcome"
)

// FastPathEngine resolves rounds without attestation checks. Its routes
// sit behind the signed fast-path middleware.
type FastPathEngine interface {
	FastReveal(ctx context.Context, caller string, key domain.RoundKey, o domain.Outcome) error
	FulfillRandomness(ctx context.Context, key domain.RoundKey, rnd outcome.Randomness) error
}

type FastPathHandler struct {
	engine FastPathEngine
	logger *slog.Logger
}

func NewFastPathHandler(engine FastPathEngine, logger *slog.Logger) *FastPathHandler {
	return &FastPathHandler{engine: engine, logger: logger}
}

type fastRevealRequest struct {
	Outcome domain.Outcome `json:"outcome"`
}

// FastReveal sets the outcome directly.
// POST /api/fast/markets/{market}/rounds/{number}/reveal
func (h *FastPathHandler) FastReveal(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req fastRevealRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.FastReveal(r.Context(), who, key, req.Outcome); err != nil {
		writeDomainError(w, r, h.logger, "fast_reveal", err)
		return
	}
	okJSON(w, "fast_reveal", http.StatusOK, req.Outcome)
}

type randomnessRequest struct {
	Randomness common.Hash `json:"randomness"`
}

// FulfillRandomness is the randomness provider's callback.
// POST /api/fast/markets/{market}/rounds/{number}/randomness
func (h *FastPathHandler) FulfillRandomness(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req randomnessRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.FulfillRandomness(r.Context(), key, outcome.Randomness(req.Randomness)); err != nil {
		writeDomainError(w, r, h.logger, "fulfill_randomness", err)
		return
	}
	okJSON(w, "fulfill_randomness", http.StatusOK, map[string]string{"round": key.String()})
}
