package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
)

// RoundEngine drives a round through its lifecycle.
type RoundEngine interface {
	OpenRound(ctx context.Context, caller, marketID string) (domain.Round, error)
	ScheduleLock(ctx context.Context, caller string, key domain.RoundKey, lockAt int64) error
	LockRound(ctx context.Context, caller string, key domain.RoundKey) error
	CommitOutcome(ctx context.Context, caller string, key domain.RoundKey, commitment common.Hash, sig []byte) error
	Reveal(ctx context.Context, caller string, key domain.RoundKey, o domain.Outcome, proof engine.RevealProof) error
	SettleRound(ctx context.Context, caller string, key domain.RoundKey) error
}

type RoundReader interface {
	Round(ctx context.Context, key domain.RoundKey) (domain.Round, error)
	Rounds(ctx context.Context, filter domain.RoundFilter) ([]domain.Round, error)
	Attestation(ctx context.Context, key domain.RoundKey) (domain.StoredAttestation, error)
	Record(ctx context.Context, key domain.RoundKey) (domain.RoundRecord, error)
}

// RoundHandler serves round lifecycle endpoints.
type RoundHandler struct {
	engine RoundEngine
	reader RoundReader
	logger *slog.Logger
}

func NewRoundHandler(engine RoundEngine, reader RoundReader, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{engine: engine, reader: reader, logger: logger}
}

// ListRounds returns a market's rounds, newest first.
// GET /api/markets/{market}/rounds?status=locked&limit=20
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	filter := domain.RoundFilter{MarketID: r.PathValue("market"), Limit: parseListOpts(r).Limit}
	if s := r.URL.Query().Get("status"); s != "" {
		var st domain.RoundStatus
		if err := st.UnmarshalText([]byte(s)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &st
	}
	rounds, err := h.reader.Rounds(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, h.logger, "list_rounds", err)
		return
	}
	if rounds == nil {
		rounds = []domain.Round{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetRound returns one round.
// GET /api/markets/{market}/rounds/{number}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	round, err := h.reader.Round(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get_round", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetAttestation returns the attestation used to commit and reveal a round.
// GET /api/markets/{market}/rounds/{number}/attestation
func (h *RoundHandler) GetAttestation(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	att, err := h.reader.Attestation(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get_attestation", err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// GetRecord returns the round with its market, bets, entries and attestation.
// GET /api/markets/{market}/rounds/{number}/record
func (h *RoundHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	rec, err := h.reader.Record(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get_record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// OpenRound starts the next round of a market.
// POST /api/markets/{market}/rounds
func (h *RoundHandler) OpenRound(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	round, err := h.engine.OpenRound(r.Context(), who, r.PathValue("market"))
	if err != nil {
		writeDomainError(w, r, h.logger, "open_round", err)
		return
	}
	okJSON(w, "open_round", http.StatusCreated, round)
}

type scheduleLockRequest struct {
	LockAt int64 `json:"lock_at"`
}

// ScheduleLock sets the unix time after which the round may lock.
// POST /api/markets/{market}/rounds/{number}/schedule_lock
func (h *RoundHandler) ScheduleLock(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req scheduleLockRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ScheduleLock(r.Context(), who, key, req.LockAt); err != nil {
		writeDomainError(w, r, h.logger, "schedule_lock", err)
		return
	}
	okJSON(w, "schedule_lock", http.StatusOK, req)
}

// LockRound closes betting.
// POST /api/markets/{market}/rounds/{number}/lock
func (h *RoundHandler) LockRound(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "lock_round", h.engine.LockRound)
}

// SettleRound closes a fully settled round.
// POST /api/markets/{market}/rounds/{number}/settle
func (h *RoundHandler) SettleRound(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "settle_round", h.engine.SettleRound)
}

func (h *RoundHandler) adminAction(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string, domain.RoundKey) error) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), who, key); err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	round, err := h.reader.Round(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	okJSON(w, op, http.StatusOK, round)
}

type commitRequest struct {
	CommitmentHash common.Hash   `json:"commitment_hash"`
	Signature      hexutil.Bytes `json:"signature"`
}

// CommitOutcome records the attested commitment for a locked round.
// POST /api/markets/{market}/rounds/{number}/commit
func (h *RoundHandler) CommitOutcome(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.CommitOutcome(r.Context(), who, key, req.CommitmentHash, req.Signature); err != nil {
		writeDomainError(w, r, h.logger, "commit_outcome", err)
		return
	}
	okJSON(w, "commit_outcome", http.StatusOK, map[string]string{"commitment_hash": req.CommitmentHash.Hex()})
}

type revealRequest struct {
	Outcome    domain.Outcome `json:"outcome"`
	Nonce      common.Hash    `json:"nonce"`
	InputsHash common.Hash    `json:"inputs_hash"`
	Signature  hexutil.Bytes  `json:"signature"`
}

// Reveal opens the commitment and fixes the outcome.
// POST /api/markets/{market}/rounds/{number}/reveal
func (h *RoundHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req revealRequest
	if !decode(w, r, &req) {
		return
	}
	proof := engine.RevealProof{Nonce: req.Nonce, InputsHash: req.InputsHash, Signature: req.Signature}
	if err := h.engine.Reveal(r.Context(), who, key, req.Outcome, proof); err != nil {
		writeDomainError(w, r, h.logger, "reveal", err)
		return
	}
	round, err := h.reader.Round(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "reveal", err)
		return
	}
	okJSON(w, "reveal", http.StatusOK, round)
}

