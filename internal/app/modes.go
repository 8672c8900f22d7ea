package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chigozzdevv/tossr/internal/attestor"
	"github.com/chigozzdevv/tossr/internal/engine"
	"github.com/chigozzdevv/tossr/internal/operator"
	"github.com/chigozzdevv/tossr/internal/server"
	"github.com/chigozzdevv/tossr/internal/server/handler"
	"github.com/chigozzdevv/tossr/internal/server/middleware"
	"github.com/chigozzdevv/tossr/internal/server/ws"
	"github.com/chigozzdevv/tossr/internal/service"
)

const shutdownTimeout = 5 * time.Second

// EngineMode starts the engine API, the websocket hub, the notifier and,
// when enabled, the operator.
func (a *App) EngineMode(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	eng := engine.New(deps.Ledger, deps.Verifier, deps.SignalBus, a.logger)
	rounds := service.NewRoundService(deps.Ledger, deps.RoundCache, deps.Attestations, deps.SignalBus, a.logger)

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})

		scfg := a.cfg.Server
		srv := server.NewServer(server.Config{
			Port:             scfg.Port,
			CORSOrigins:      scfg.CORSOrigins,
			APIKey:           scfg.APIKey,
			EntriesPerMinute: scfg.EntriesPerMinute,
			FastPath: server.FastPathConfig{
				Enabled: scfg.FastPath.Enabled,
				Secret:  scfg.FastPath.Secret,
				Callers: scfg.FastPath.Callers,
				MaxSkew: scfg.FastPath.MaxSkew.Duration,
			},
		}, server.Handlers{
			Health:    handler.NewHealthHandler(a.cfg.Mode),
			Markets:   handler.NewMarketHandler(eng, rounds, a.logger),
			Rounds:    handler.NewRoundHandler(eng, rounds, a.logger),
			Bets:      handler.NewBetHandler(eng, rounds, a.logger),
			Satellite: handler.NewSatelliteHandler(eng, rounds, a.logger),
			Events:    handler.NewEventHandler(rounds, a.logger),
			FastPath:  handler.NewFastPathHandler(eng, a.logger),
		}, hub, deps.RateLimiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	if deps.Notifier.Enabled() {
		g.Go(func() error {
			return deps.Notifier.Watch(ctx, deps.SignalBus)
		})
	}

	if a.cfg.Operator.Enabled {
		op, err := a.newOperator(eng, rounds, deps)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return op.Run(ctx)
		})
	}
	return nil
}

func (a *App) newOperator(eng *engine.Engine, rounds *service.RoundService, deps *Dependencies) (*operator.Operator, error) {
	ocfg := a.cfg.Operator
	od := operator.Deps{
		Ledger:       deps.Ledger,
		Engine:       eng,
		Attestations: deps.Attestations,
		Audit:        deps.Audit,
		Locks:        deps.LockManager,
		Records:      rounds,
		Alerts:       deps.Notifier,
	}
	// A remote producer wins over a local key so the engine never signs
	// for itself when an attestor service is configured.
	switch {
	case a.cfg.Attestor.URL != "":
		client := attestor.NewClient(a.cfg.Attestor.URL, a.cfg.Attestor.Timeout.Duration)
		od.Source = client
		od.Streaks = client
	case deps.Producer != nil:
		od.Source = deps.Producer
		od.Streaks = deps.Streaks
	default:
		return nil, errors.New("app: operator needs attestor.url or an attestor signing key")
	}
	if deps.Archiver != nil {
		od.Archiver = deps.Archiver
		od.Journal = deps.Archiver
	}

	op, err := operator.New(operator.Config{
		Admin:         ocfg.Admin,
		TickInterval:  ocfg.TickInterval.Duration,
		RoundDuration: ocfg.RoundDuration.Duration,
		StallTimeout:  ocfg.StallTimeout.Duration,
		LockTTL:       ocfg.LockTTL.Duration,
		Concurrency:   ocfg.Concurrency,
		JournalCron:   ocfg.JournalCron,
	}, od, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: operator: %w", err)
	}
	return op, nil
}

// AttestorMode serves the attestation producer over HTTP.
func (a *App) AttestorMode(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Producer == nil {
		return errors.New("app: attestor mode needs a signing key")
	}
	a.logger.InfoContext(ctx, "starting attestor mode", slog.Int("port", a.cfg.Attestor.Port))

	h := attestor.NewHandler(deps.Producer, deps.Streaks, a.logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Attestor.Port),
		Handler:           middleware.Logging(a.logger)(h.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("attestor server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.InfoContext(ctx, "attestor server shutting down")
		return srv.Shutdown(shutCtx)
	})
	return nil
}
