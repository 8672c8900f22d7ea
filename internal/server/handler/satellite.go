package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// SatelliteEngine covers the streak, jackpot, community and permission modes.
type SatelliteEngine interface {
	InitStreak(ctx context.Context, caller, marketID string, target uint8) (domain.Streak, error)
	RecordStreakResult(ctx context.Context, caller, marketID string, round uint64) (domain.Streak, error)
	ClaimStreak(ctx context.Context, caller string, key domain.StreakKey) (uint64, error)

	InitJackpot(ctx context.Context, caller, marketID string) (domain.JackpotPot, error)
	Contribute(ctx context.Context, caller, marketID string, amount uint64) (domain.JackpotPot, error)
	ClaimJackpot(ctx context.Context, caller string, key domain.RoundKey) (uint64, error)

	JoinCommunity(ctx context.Context, caller string, key domain.RoundKey, seed uint8) (domain.CommunityEntry, error)
	FinalizeCommunity(ctx context.Context, caller string, key domain.RoundKey, seeds []byte) (domain.Outcome, error)
	SettleCommunityEntry(ctx context.Context, caller string, key domain.RoundKey, user string) (domain.CommunityEntry, error)

	CreatePermissionGroup(ctx context.Context, caller string, key domain.RoundKey, viewers []string) (domain.PermissionGroup, error)
	AddViewer(ctx context.Context, caller string, key domain.RoundKey, viewer string) (domain.PermissionGroup, error)
	RemoveViewer(ctx context.Context, caller string, key domain.RoundKey, viewer string) (domain.PermissionGroup, error)
}

type SatelliteReader interface {
	Streak(ctx context.Context, key domain.StreakKey) (domain.Streak, error)
	Jackpot(ctx context.Context, marketID string) (domain.JackpotPot, error)
	CommunityEntries(ctx context.Context, key domain.RoundKey) ([]domain.CommunityEntry, error)
	PermissionGroup(ctx context.Context, key domain.RoundKey) (domain.PermissionGroup, error)
}

type SatelliteHandler struct {
	engine SatelliteEngine
	reader SatelliteReader
	logger *slog.Logger
}

func NewSatelliteHandler(engine SatelliteEngine, reader SatelliteReader, logger *slog.Logger) *SatelliteHandler {
	return &SatelliteHandler{engine: engine, reader: reader, logger: logger}
}

type amountResponse struct {
	Amount uint64 `json:"amount"`
}

// --- streaks ---

type initStreakRequest struct {
	Target uint8 `json:"target"`
}

// InitStreak starts the caller's streak.
// POST /api/markets/{market}/streaks
func (h *SatelliteHandler) InitStreak(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req initStreakRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.engine.InitStreak(r.Context(), who, r.PathValue("market"), req.Target)
	if err != nil {
		writeDomainError(w, r, h.logger, "init_streak", err)
		return
	}
	okJSON(w, "init_streak", http.StatusCreated, s)
}

type recordStreakRequest struct {
	Round uint64 `json:"round"`
}

// RecordStreakResult advances the caller's streak with a settled bet.
// POST /api/markets/{market}/streaks/record
func (h *SatelliteHandler) RecordStreakResult(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req recordStreakRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.engine.RecordStreakResult(r.Context(), who, r.PathValue("market"), req.Round)
	if err != nil {
		writeDomainError(w, r, h.logger, "record_streak_result", err)
		return
	}
	okJSON(w, "record_streak_result", http.StatusOK, s)
}

// ClaimStreak pays out the caller's completed streak.
// POST /api/markets/{market}/streaks/claim
func (h *SatelliteHandler) ClaimStreak(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	paid, err := h.engine.ClaimStreak(r.Context(), who, domain.StreakKey{User: who, MarketID: r.PathValue("market")})
	if err != nil {
		writeDomainError(w, r, h.logger, "claim_streak", err)
		return
	}
	okJSON(w, "claim_streak", http.StatusOK, amountResponse{Amount: paid})
}

// GetStreak returns a user's streak.
// GET /api/markets/{market}/streaks/{user}
func (h *SatelliteHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	s, err := h.reader.Streak(r.Context(), domain.StreakKey{User: r.PathValue("user"), MarketID: r.PathValue("market")})
	if err != nil {
		writeDomainError(w, r, h.logger, "get_streak", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// --- jackpots ---

// InitJackpot creates an empty pot.
// POST /api/markets/{market}/jackpot
func (h *SatelliteHandler) InitJackpot(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	p, err := h.engine.InitJackpot(r.Context(), who, r.PathValue("market"))
	if err != nil {
		writeDomainError(w, r, h.logger, "init_jackpot", err)
		return
	}
	okJSON(w, "init_jackpot", http.StatusCreated, p)
}

type contributeRequest struct {
	Amount uint64 `json:"amount"`
}

// Contribute adds to the pot.
// POST /api/markets/{market}/jackpot/contribute
func (h *SatelliteHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req contributeRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.engine.Contribute(r.Context(), who, r.PathValue("market"), req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "contribute", err)
		return
	}
	okJSON(w, "contribute", http.StatusOK, p)
}

// ClaimJackpot drains the pot to the caller's winning bet.
// POST /api/markets/{market}/rounds/{number}/jackpot/claim
func (h *SatelliteHandler) ClaimJackpot(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	paid, err := h.engine.ClaimJackpot(r.Context(), who, key)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim_jackpot", err)
		return
	}
	okJSON(w, "claim_jackpot", http.StatusOK, amountResponse{Amount: paid})
}

// GetJackpot returns the pot.
// GET /api/markets/{market}/jackpot
func (h *SatelliteHandler) GetJackpot(w http.ResponseWriter, r *http.Request) {
	p, err := h.reader.Jackpot(r.Context(), r.PathValue("market"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get_jackpot", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- community ---

type joinCommunityRequest struct {
	Seed uint8 `json:"seed"`
}

// JoinCommunity adds the caller's seed byte.
// POST /api/markets/{market}/rounds/{number}/community
func (h *SatelliteHandler) JoinCommunity(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req joinCommunityRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.engine.JoinCommunity(r.Context(), who, key, req.Seed)
	if err != nil {
		writeDomainError(w, r, h.logger, "join_community", err)
		return
	}
	okJSON(w, "join_community", http.StatusCreated, e)
}

type finalizeCommunityRequest struct {
	// Seeds overrides the joined entries when present.
	Seeds hexutil.Bytes `json:"seeds,omitempty"`
}

// FinalizeCommunity fixes the round's outcome from the seeds.
// POST /api/markets/{market}/rounds/{number}/community/finalize
func (h *SatelliteHandler) FinalizeCommunity(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req finalizeCommunityRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	o, err := h.engine.FinalizeCommunity(r.Context(), who, key, req.Seeds)
	if err != nil {
		writeDomainError(w, r, h.logger, "finalize_community", err)
		return
	}
	okJSON(w, "finalize_community", http.StatusOK, o)
}

// SettleCommunityEntry scores one entry.
// POST /api/markets/{market}/rounds/{number}/community/{user}/settle
func (h *SatelliteHandler) SettleCommunityEntry(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	e, err := h.engine.SettleCommunityEntry(r.Context(), who, key, r.PathValue("user"))
	if err != nil {
		writeDomainError(w, r, h.logger, "settle_community_entry", err)
		return
	}
	okJSON(w, "settle_community_entry", http.StatusOK, e)
}

// ListCommunityEntries returns entries in join order.
// GET /api/markets/{market}/rounds/{number}/community
func (h *SatelliteHandler) ListCommunityEntries(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	entries, err := h.reader.CommunityEntries(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "list_community_entries", err)
		return
	}
	if entries == nil {
		entries = []domain.CommunityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- permission groups ---

type permissionRequest struct {
	Viewers []string `json:"viewers"`
}

// CreatePermissionGroup restricts who may list a round's bets.
// POST /api/markets/{market}/rounds/{number}/permissions
func (h *SatelliteHandler) CreatePermissionGroup(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.engine.CreatePermissionGroup(r.Context(), who, key, req.Viewers)
	if err != nil {
		writeDomainError(w, r, h.logger, "create_permission_group", err)
		return
	}
	okJSON(w, "create_permission_group", http.StatusCreated, g)
}

// AddViewer appends one viewer.
// PUT /api/markets/{market}/rounds/{number}/permissions/{viewer}
func (h *SatelliteHandler) AddViewer(w http.ResponseWriter, r *http.Request) {
	h.viewer(w, r, "add_viewer", h.engine.AddViewer)
}

// RemoveViewer drops one viewer.
// DELETE /api/markets/{market}/rounds/{number}/permissions/{viewer}
func (h *SatelliteHandler) RemoveViewer(w http.ResponseWriter, r *http.Request) {
	h.viewer(w, r, "remove_viewer", h.engine.RemoveViewer)
}

func (h *SatelliteHandler) viewer(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string, domain.RoundKey, string) (domain.PermissionGroup, error)) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	g, err := fn(r.Context(), who, key, r.PathValue("viewer"))
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	okJSON(w, op, http.StatusOK, g)
}

// GetPermissionGroup returns a round's viewer list.
// GET /api/markets/{market}/rounds/{number}/permissions
func (h *SatelliteHandler) GetPermissionGroup(w http.ResponseWriter, r *http.Request) {
	key, ok := roundKey(w, r)
	if !ok {
		return
	}
	g, err := h.reader.PermissionGroup(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get_permission_group", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

