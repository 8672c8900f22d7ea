package attestor

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// GenerateRequest is the body of POST /generate_outcome.
type GenerateRequest struct {
	RoundID    string            `json:"round_id"`
	MarketType domain.MarketType `json:"market_type"`
	Params     *WireParams       `json:"params,omitempty"`
}

type WireParams struct {
	ChainHash      hexutil.Bytes `json:"chain_hash,omitempty"`
	CommunitySeeds hexutil.Bytes `json:"community_seeds,omitempty"`
}

func (r GenerateRequest) params() Params {
	if r.Params == nil {
		return Params{}
	}
	return Params{ChainHash: r.Params.ChainHash, CommunitySeeds: r.Params.CommunitySeeds}
}

// UpdateStreakRequest is the body of POST /update_streak.
type UpdateStreakRequest struct {
	RoundID string `json:"round_id"`
	Wallet  string `json:"wallet"`
	Won     bool   `json:"won"`
	Target  uint8  `json:"target"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handler serves the producer over HTTP.
type Handler struct {
	producer *Producer
	streaks  *StreakStore
	logger   *slog.Logger
}

func NewHandler(producer *Producer, streaks *StreakStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{producer: producer, streaks: streaks, logger: logger.With(slog.String("component", "attestor_http"))}
}

// Routes registers the producer endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate_outcome", h.GenerateOutcome)
	mux.HandleFunc("POST /update_streak", h.UpdateStreak)
	mux.HandleFunc("GET /get_streak/{wallet}", h.GetStreak)
	mux.HandleFunc("GET /health", h.Health)
	return mux
}

// GenerateOutcome returns a signed attestation for one round.
// POST /generate_outcome
func (h *Handler) GenerateOutcome(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.RoundID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "round_id is required"})
		return
	}

	att, err := h.producer.Produce(r.Context(), req.RoundID, req.MarketType, req.params())
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: de.Code})
			return
		}
		h.logger.ErrorContext(r.Context(), "attestor: produce failed",
			slog.String("round_id", req.RoundID),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to produce attestation"})
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// UpdateStreak records a win or loss for a wallet.
// POST /update_streak
func (h *Handler) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	var req UpdateStreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "wallet is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"new_streak": h.streaks.Update(req.Wallet, req.Won)})
}

// GET /get_streak/{wallet}
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint32{"streak": h.streaks.Get(r.PathValue("wallet"))})
}

// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"tee":        "operational",
		"public_key": hex.EncodeToString(h.producer.PublicKey()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
