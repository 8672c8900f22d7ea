package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/cache/local"
	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
	"github.com/chigozzdevv/tossr/internal/server/handler"
	"github.com/chigozzdevv/tossr/internal/server/middleware"
	"github.com/chigozzdevv/tossr/internal/service"
	"github.com/chigozzdevv/tossr/internal/store/memory"
)

const (
	admin  = "admin-wallet"
	secret = "fast-path-secret"
)

type apiClient struct {
	t *testing.T
	h http.Handler
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewVerifier(signer.PublicKey())
	require.NoError(t, err)

	ledger := memory.NewLedger()
	bus := local.NewBus()
	eng := engine.New(ledger, verifier, bus, logger)
	reader := service.NewRoundService(ledger, nil, memory.NewAttestationStore(), bus, logger)

	srv := NewServer(Config{
		EntriesPerMinute: 2,
		FastPath:         FastPathConfig{Enabled: true, Secret: secret, Callers: []string{admin}, MaxSkew: time.Minute},
	}, Handlers{
		Health:    handler.NewHealthHandler("test"),
		Markets:   handler.NewMarketHandler(eng, reader, logger),
		Rounds:    handler.NewRoundHandler(eng, reader, logger),
		Bets:      handler.NewBetHandler(eng, reader, logger),
		Satellite: handler.NewSatelliteHandler(eng, reader, logger),
		Events:    handler.NewEventHandler(reader, logger),
		FastPath:  handler.NewFastPathHandler(eng, logger),
	}, nil, local.NewRateLimiter(), logger)
	return &apiClient{t: t, h: srv.Handler()}
}

func (c *apiClient) do(method, path, who string, body any, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		require.NoError(c.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	if who != "" {
		req.Header.Set(middleware.HeaderCaller, who)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *apiClient) createMarket(mt domain.MarketType) domain.Market {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/markets", admin, engine.MarketParams{Name: "m", Type: mt, Asset: "USDC", HouseEdgeBps: 200}, nil)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.Market](c.t, rec)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newAPI(t)
	rec := api.do(http.MethodGet, "/api/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decodeBody[map[string]any](t, rec)["mode"])

	rec = api.do(http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWritesRequireCaller(t *testing.T) {
	api := newAPI(t)
	rec := api.do(http.MethodPost, "/api/markets", "", engine.MarketParams{Type: domain.MarketEvenOdd}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeBody[errBody](t, rec).Code)
}

func TestDomainErrorsCarryCodes(t *testing.T) {
	api := newAPI(t)
	m := api.createMarket(domain.MarketEvenOdd)

	rec := api.do(http.MethodGet, "/api/markets/"+m.ID+"/rounds/7", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody[errBody](t, rec).Code)

	rec = api.do(http.MethodPost, "/api/markets/"+m.ID+"/rounds", "mallory", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPut, "/api/markets/"+m.ID+"/house_edge", admin, map[string]any{"house_edge_bps": 10001}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidHouseEdge", decodeBody[errBody](t, rec).Code)

	rec = api.do(http.MethodGet, "/api/markets/"+m.ID+"/rounds/zero", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoundLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)
	m := api.createMarket(domain.MarketEvenOdd)
	base := "/api/markets/" + m.ID + "/rounds"

	rec := api.do(http.MethodPost, base, admin, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(1), decodeBody[domain.Round](t, rec).Number)

	bet := engine.BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 100}
	rec = api.do(http.MethodPost, base+"/1/bets", "alice", bet, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, uint16(196), decodeBody[domain.Bet](t, rec).OddsBps)

	rec = api.do(http.MethodPost, base+"/1/bets", "alice", bet, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyExists", decodeBody[errBody](t, rec).Code)

	rec = api.do(http.MethodPost, base+"/1/lock", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RoundLocked, decodeBody[domain.Round](t, rec).Status)

	rec = api.do(http.MethodPost, base+"/1/settle", admin, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OutcomeNotRevealed", decodeBody[errBody](t, rec).Code)

	path := "/api/fast/markets/" + m.ID + "/rounds/1/reveal"
	body, err := json.Marshal(map[string]any{"outcome": domain.Numeric(0)})
	require.NoError(t, err)
	auth := crypto.RequestAuth{Secret: []byte(secret)}

	rec = api.do(http.MethodPost, path, admin, json.RawMessage(body), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, path, admin, json.RawMessage(body), auth.Headers(admin, http.MethodPost, path, body, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, base+"/1/bets/alice/settle", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decodeBody[domain.Bet](t, rec)
	assert.True(t, settled.Won)
	assert.Equal(t, uint64(196), settled.Payout)

	rec = api.do(http.MethodPost, base+"/1/settle", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RoundSettled, decodeBody[domain.Round](t, rec).Status)

	rec = api.do(http.MethodGet, "/api/transfers?account=alice", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	transfers := decodeBody[struct {
		Transfers []domain.Transfer `json:"transfers"`
	}](t, rec).Transfers
	assert.Len(t, transfers, 2)

	rec = api.do(http.MethodGet, "/api/events?after=0", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[struct {
		Events []struct {
			ID    string       `json:"id"`
			Event domain.Event `json:"event"`
		} `json:"events"`
		Next string `json:"next"`
	}](t, rec)
	require.NotEmpty(t, events.Events)
	assert.Equal(t, domain.EventMarketCreated, events.Events[0].Event.Type)
	last := events.Events[len(events.Events)-1]
	assert.Equal(t, domain.EventRoundSettled, last.Event.Type)
	assert.Equal(t, last.ID, events.Next)

	rec = api.do(http.MethodGet, "/api/events?after="+events.Next, "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[eventsPage](t, rec).Events)
}

type eventsPage struct {
	Events []json.RawMessage `json:"events"`
}

func TestFastPathRejectsUnlistedCaller(t *testing.T) {
	api := newAPI(t)
	m := api.createMarket(domain.MarketEvenOdd)
	path := "/api/fast/markets/" + m.ID + "/rounds/1/randomness"
	body := []byte(`{"randomness":"0x0000000000000000000000000000000000000000000000000000000000000000"}`)
	auth := crypto.RequestAuth{Secret: []byte(secret)}

	rec := api.do(http.MethodPost, path, "mallory", json.RawMessage(body), auth.Headers("mallory", http.MethodPost, path, body, time.Now()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEntriesAreRateLimited(t *testing.T) {
	api := newAPI(t)
	m := api.createMarket(domain.MarketEvenOdd)
	base := "/api/markets/" + m.ID + "/rounds"
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, base, admin, nil, nil).Code)

	bet := engine.BetRequest{Selection: domain.Selection{Kind: domain.SelectParity, A: 1}, Stake: 1}
	assert.Equal(t, http.StatusCreated, api.do(http.MethodPost, base+"/1/bets", "bob", bet, nil).Code)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, base+"/1/bets", "bob", bet, nil).Code)

	rec := api.do(http.MethodPost, base+"/1/bets", "bob", bet, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimited", decodeBody[errBody](t, rec).Code)

	assert.Equal(t, http.StatusCreated, api.do(http.MethodPost, base+"/1/bets", "carol", bet, nil).Code)
}

func TestPermissionGroupGatesBetListing(t *testing.T) {
	api := newAPI(t)
	m := api.createMarket(domain.MarketEvenOdd)
	base := "/api/markets/" + m.ID + "/rounds"
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, base, admin, nil, nil).Code)

	rec := api.do(http.MethodPost, base+"/1/permissions", admin, map[string]any{"viewers": []string{"auditor"}}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPut, base+"/1/permissions/auditor", admin, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ViewerAlreadyExists", decodeBody[errBody](t, rec).Code)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, base+"/1/bets", "stranger", nil, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/1/bets", "auditor", nil, nil).Code)

	rec = api.do(http.MethodDelete, base+"/1/permissions/auditor", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[domain.PermissionGroup](t, rec).Viewers)
}

func TestCommunityOverHTTP(t *testing.T) {
	api := newAPI(t)
	m := api.createMarket(domain.MarketCommunitySeed)
	base := "/api/markets/" + m.ID + "/rounds"
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, base, admin, nil, nil).Code)

	rec := api.do(http.MethodPost, base+"/1/community", "alice", map[string]any{"seed": 42}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/1/lock", admin, nil, nil).Code)

	rec = api.do(http.MethodPost, base+"/1/community/finalize", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	o := decodeBody[domain.Outcome](t, rec)
	assert.Equal(t, domain.OutcomeCommunity, o.Kind)

	rec = api.do(http.MethodPost, base+"/1/community/alice/settle", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[domain.CommunityEntry](t, rec).Settled)
}
