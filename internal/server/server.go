// Package server exposes the engine and its read side over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/server/handler"
	"github.com/chigozzdevv/tossr/internal/server/middleware"
	"github.com/chigozzdevv/tossr/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// EntriesPerMinute limits bet placements and community joins per caller.
	EntriesPerMinute int

	FastPath FastPathConfig
}

// FastPathConfig gates the unverified reveal and randomness callback routes.
type FastPathConfig struct {
	Enabled bool
	Secret  string
	Callers []string
	MaxSkew time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Rounds    *handler.RoundHandler
	Bets      *handler.BetHandler
	Satellite *handler.SatelliteHandler
	Events    *handler.EventHandler
	FastPath  *handler.FastPathHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in Caller, Logging,
// CORS and Auth middleware. limiter and wsHub may be nil.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	limited := func(next http.HandlerFunc) http.Handler {
		if limiter == nil || cfg.EntriesPerMinute <= 0 {
			return next
		}
		return middleware.RateLimit(limiter, "entries", cfg.EntriesPerMinute, time.Minute)(next)
	}

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Markets.
	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", h.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{market}", h.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{market}/toggle", h.Markets.ToggleMarket)
	mux.HandleFunc("PUT /api/markets/{market}/house_edge", h.Markets.SetHouseEdge)
	mux.HandleFunc("PUT /api/markets/{market}/patterns/{id}", h.Markets.SetPatternConfig)

	// Rounds.
	const round = "/api/markets/{market}/rounds/{number}"
	mux.HandleFunc("GET /api/markets/{market}/rounds", h.Rounds.ListRounds)
	mux.HandleFunc("POST /api/markets/{market}/rounds", h.Rounds.OpenRound)
	mux.HandleFunc("GET "+round, h.Rounds.GetRound)
	mux.HandleFunc("GET "+round+"/attestation", h.Rounds.GetAttestation)
	mux.HandleFunc("GET "+round+"/record", h.Rounds.GetRecord)
	mux.HandleFunc("POST "+round+"/schedule_lock", h.Rounds.ScheduleLock)
	mux.HandleFunc("POST "+round+"/lock", h.Rounds.LockRound)
	mux.HandleFunc("POST "+round+"/commit", h.Rounds.CommitOutcome)
	mux.HandleFunc("POST "+round+"/reveal", h.Rounds.Reveal)
	mux.HandleFunc("POST "+round+"/settle", h.Rounds.SettleRound)

	// Bets.
	mux.Handle("POST "+round+"/bets", limited(h.Bets.PlaceBet))
	mux.HandleFunc("GET "+round+"/bets", h.Bets.ListBets)
	mux.HandleFunc("GET "+round+"/bets/{user}", h.Bets.GetBet)
	mux.HandleFunc("POST "+round+"/bets/{user}/settle", h.Bets.SettleBet)

	// Streaks and jackpots.
	mux.HandleFunc("POST /api/markets/{market}/streaks", h.Satellite.InitStreak)
	mux.HandleFunc("POST /api/markets/{market}/streaks/record", h.Satellite.RecordStreakResult)
	mux.HandleFunc("POST /api/markets/{market}/streaks/claim", h.Satellite.ClaimStreak)
	mux.HandleFunc("GET /api/markets/{market}/streaks/{user}", h.Satellite.GetStreak)
	mux.HandleFunc("POST /api/markets/{market}/jackpot", h.Satellite.InitJackpot)
	mux.HandleFunc("GET /api/markets/{market}/jackpot", h.Satellite.GetJackpot)
	mux.HandleFunc("POST /api/markets/{market}/jackpot/contribute", h.Satellite.Contribute)
	mux.HandleFunc("POST "+round+"/jackpot/claim", h.Satellite.ClaimJackpot)

	// Community rounds.
	mux.Handle("POST "+round+"/community", limited(h.Satellite.JoinCommunity))
	mux.HandleFunc("GET "+round+"/community", h.Satellite.ListCommunityEntries)
	mux.HandleFunc("POST "+round+"/community/finalize", h.Satellite.FinalizeCommunity)
	mux.HandleFunc("POST "+round+"/community/{user}/settle", h.Satellite.SettleCommunityEntry)

	// Permission groups.
	mux.HandleFunc("POST "+round+"/permissions", h.Satellite.CreatePermissionGroup)
	mux.HandleFunc("GET "+round+"/permissions", h.Satellite.GetPermissionGroup)
	mux.HandleFunc("PUT "+round+"/permissions/{viewer}", h.Satellite.AddViewer)
	mux.HandleFunc("DELETE "+round+"/permissions/{viewer}", h.Satellite.RemoveViewer)

	// Event stream and journal.
	mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	mux.HandleFunc("GET /api/transfers", h.Events.ListTransfers)

	if cfg.FastPath.Enabled && h.FastPath != nil {
		auth := crypto.RequestAuth{Secret: []byte(cfg.FastPath.Secret), MaxSkew: cfg.FastPath.MaxSkew}
		gate := middleware.FastPath(auth, cfg.FastPath.Callers, nil)
		const fast = "/api/fast/markets/{market}/rounds/{number}"
		mux.Handle("POST "+fast+"/reveal", gate(http.HandlerFunc(h.FastPath.FastReveal)))
		mux.Handle("POST "+fast+"/randomness", gate(http.HandlerFunc(h.FastPath.FulfillRandomness)))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var handler http.Handler = mux
	handler = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Caller(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
