package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clawstreet/clawd/internal/attest"
	"github.com/clawstreet/clawd/internal/curve"
	"github.com/clawstreet/clawd/internal/engine"
	"github.com/clawstreet/clawd/internal/notify"
	"github.com/clawstreet/clawd/internal/server"
	"github.com/clawstreet/clawd/internal/server/handler"
	"github.com/clawstreet/clawd/internal/server/ws"
	"github.com/clawstreet/clawd/internal/service"
)

// curveParams translates the config section into engine curve parameters.
func (a *App) curveParams() curve.Params {
	return curve.Params{
		K:         a.cfg.Curve.K,
		UnitScale: new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.cfg.Curve.UnitDecimals)), nil),
	}
}

// ServeMode runs the full daemon: trade engine, HTTP API, WebSocket hub,
// event notifications, and the trade archiver. Dev mode reaches here too,
// running on in-process stores without Redis-backed fan-out.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	verifier := attest.NewVerifier(attest.VerifierConfig{
		Authority:       deps.Authority,
		ChainID:         a.cfg.Attest.ChainID,
		FreshnessWindow: a.cfg.Attest.FreshnessWindow.Duration,
	}, deps.Nonces)

	eng, err := engine.New(engine.Config{
		Markets:  deps.Markets,
		Balances: deps.Balances,
		Verifier: verifier,
		Curve:    a.curveParams(),
		Fees: curve.FeeSplit{
			ProtocolBps:   a.cfg.Fees.ProtocolBps,
			OriginatorBps: a.cfg.Fees.OriginatorBps,
		},
		Cache:    deps.MarketCache,
		Bus:      deps.SignalBus,
		DistLock: deps.LockManager,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	marketSvc := service.NewMarketService(deps.Markets, deps.Balances, deps.Trades, deps.MarketCache, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(marketSvc, eng, a.logger),
		Trades:    handler.NewTradeHandler(eng, a.logger),
		Claims:    handler.NewClaimHandler(eng, a.logger),
		Verify:    handler.NewVerifyHandler(eng, a.logger),
		Portfolio: handler.NewPortfolioHandler(marketSvc, a.logger),
	}
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventsHandler(deps.SignalBus, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		TradeRateLimit:  a.cfg.Server.TradeRateLimit,
		TradeRateWindow: a.cfg.Server.TradeRateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if hub != nil {
		g.Go(func() error { return hub.Run(ctx) })
	}

	if deps.SignalBus != nil && deps.Notifier != nil {
		watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error { return watcher.Run(ctx) })
	}

	if deps.Archiver != nil {
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error { return deps.Archiver.Run(ctx, interval) })
	}

	return g.Wait()
}

// MigrateMode applies pending database migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if deps.PG == nil {
		return fmt.Errorf("migrate mode: postgres is not configured")
	}
	// Wire already ran migrations when postgres.run_migrations is true; this
	// covers deployments that keep it off and migrate explicitly.
	if !a.cfg.Postgres.RunMigrations {
		if err := deps.PG.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrate mode: %w", err)
		}
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}
