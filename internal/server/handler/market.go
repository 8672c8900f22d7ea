package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
)

// MarketEngine is the write side of market administration.
type MarketEngine interface {
	InitializeMarket(ctx context.Context, caller string, p engine.MarketParams) (domain.Market, error)
	ToggleMarket(ctx context.Context, caller, marketID string, active bool) error
	SetHouseEdge(ctx context.Context, caller, marketID string, edgeBps uint16) error
	SetPatternConfig(ctx context.Context, caller, marketID string, patternID uint8, pt domain.PatternType) (domain.PatternConfig, error)
}

// MarketReader serves market reads.
type MarketReader interface {
	Market(ctx context.Context, id string) (domain.Market, error)
	Markets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	engine MarketEngine
	reader MarketReader
	logger *slog.Logger
}

func NewMarketHandler(engine MarketEngine, reader MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{engine: engine, reader: reader, logger: logger}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	markets, err := h.reader.Markets(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list_markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Limit: opts.Limit, Offset: opts.Offset})
}

// GetMarket returns a single market.
// GET /api/markets/{market}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.reader.Market(r.Context(), r.PathValue("market"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get_market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMarket makes the caller the administrator of a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req engine.MarketParams
	if !decode(w, r, &req) {
		return
	}
	m, err := h.engine.InitializeMarket(r.Context(), who, req)
	if err != nil {
		writeDomainError(w, r, h.logger, "initialize_market", err)
		return
	}
	okJSON(w, "initialize_market", http.StatusCreated, m)
}

type toggleRequest struct {
	Active bool `json:"active"`
}

// ToggleMarket sets the active flag.
// POST /api/markets/{market}/toggle
func (h *MarketHandler) ToggleMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ToggleMarket(r.Context(), who, r.PathValue("market"), req.Active); err != nil {
		writeDomainError(w, r, h.logger, "toggle_market", err)
		return
	}
	okJSON(w, "toggle_market", http.StatusOK, map[string]bool{"active": req.Active})
}

type houseEdgeRequest struct {
	HouseEdgeBps uint16 `json:"house_edge_bps"`
}

// SetHouseEdge updates the edge used for bets placed from now on.
// PUT /api/markets/{market}/house_edge
func (h *MarketHandler) SetHouseEdge(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req houseEdgeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.SetHouseEdge(r.Context(), who, r.PathValue("market"), req.HouseEdgeBps); err != nil {
		writeDomainError(w, r, h.logger, "set_house_edge", err)
		return
	}
	okJSON(w, "set_house_edge", http.StatusOK, req)
}

type patternRequest struct {
	PatternType domain.PatternType `json:"pattern_type"`
}

// SetPatternConfig registers a pattern for a PatternOfDay market.
// PUT /api/markets/{market}/patterns/{id}
func (h *MarketHandler) SetPatternConfig(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "pattern id must be 0..255")
		return
	}
	var req patternRequest
	if !decode(w, r, &req) {
		return
	}
	cfg, err := h.engine.SetPatternConfig(r.Context(), who, r.PathValue("market"), uint8(id), req.PatternType)
	if err != nil {
		writeDomainError(w, r, h.logger, "set_pattern_config", err)
		return
	}
	okJSON(w, "set_pattern_config", http.StatusOK, cfg)
}
