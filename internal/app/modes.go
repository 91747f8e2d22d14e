package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pilotdeskhq/pilotdesk/internal/server"
	"github.com/pilotdeskhq/pilotdesk/internal/server/handler"
	"github.com/pilotdeskhq/pilotdesk/internal/server/ws"
	"github.com/pilotdeskhq/pilotdesk/internal/service"
)

// services bundles the domain services assembled from wired dependencies.
type services struct {
	workflow  *service.WorkflowService
	directory *service.DirectoryService
	sweeper   *service.Sweeper
}

// buildServices assembles the service layer on top of the wired stores and
// caches. Fee percentages come from config and were validated at startup.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	buyerPct, err := a.cfg.Fees.BuyerPctDecimal()
	if err != nil {
		return nil, fmt.Errorf("build services: buyer fee pct: %w", err)
	}
	sellerPct, err := a.cfg.Fees.SellerPctDecimal()
	if err != nil {
		return nil, fmt.Errorf("build services: seller fee pct: %w", err)
	}
	fees := service.FeeSchedule{BuyerPct: buyerPct, SellerPct: sellerPct}

	bidSvc := service.NewBidService(deps.DB, deps.BidStore, deps.Gateway, deps.EventBus, fees, a.logger)
	holdingSvc := service.NewHoldingService(deps.DB, deps.HoldingStore, deps.Gateway, deps.EventBus, a.logger)
	oppSvc := service.NewOpportunityService(deps.DB, deps.OpportunityStore, a.logger)

	workflow := service.NewWorkflowService(
		bidSvc, holdingSvc, oppSvc,
		deps.BidStore, deps.HoldingStore, deps.OpportunityStore,
		a.logger,
	)
	directory := service.NewDirectoryService(deps.OrgStore, deps.NotificationStore, deps.ActorCache, a.logger)
	sweeper := service.NewSweeper(
		deps.DB, deps.BidStore, deps.HoldingStore, deps.OpportunityStore,
		deps.LockManager, deps.Gateway,
		service.SweeperConfig{
			Interval:   a.cfg.Sweep.Interval.Duration,
			StaleAfter: a.cfg.Sweep.StaleAfter.Duration,
			BatchSize:  a.cfg.Sweep.BatchSize,
		},
		a.logger,
	)

	return &services{workflow: workflow, directory: directory, sweeper: sweeper}, nil
}

// ServeMode starts the HTTP + WebSocket API and, when enabled, the background
// sweeper. It blocks until the context is cancelled or a subsystem fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Opportunities: handler.NewOpportunityHandler(svcs.workflow, a.logger),
		Bids:          handler.NewBidHandler(svcs.workflow, a.logger),
		Holdings:      handler.NewHoldingHandler(svcs.workflow, a.logger),
		Notifications: handler.NewNotificationHandler(svcs.directory, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, svcs.directory, deps.RateLimiter, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})

	if a.cfg.Sweep.Enabled {
		g.Go(func() error {
			return svcs.sweeper.Run(ctx)
		})
	}

	return g.Wait()
}

// SweepMode runs only the background sweeper. This is the shape for a
// dedicated reminder worker deployed alongside one or more serve instances;
// the Redis lock keeps concurrent sweepers from double-notifying.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("sweep mode: %w", err)
	}
	return svcs.sweeper.Run(ctx)
}

// MigrateMode applies pending database migrations and exits. Wire already ran
// migrations when database.run_migrations is set; this mode forces a run
// regardless of that flag.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting migrate mode")

	if err := deps.PG.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}
