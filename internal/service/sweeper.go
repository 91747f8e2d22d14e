package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/notify"
)

// sweepLockKey is the advisory lock ensuring a single sweeping instance.
const sweepLockKey = "lock:sweep"

// SweeperConfig tunes the stale-workflow scan.
type SweeperConfig struct {
	Interval   time.Duration // time between scans
	StaleAfter time.Duration // age at which a waiting workflow earns a reminder
	BatchSize  int           // max rows per entity per scan
}

// Sweeper periodically scans for workflows stuck waiting on a human step
// and nudges the responsible party. It never performs transitions itself;
// state only moves through the machines. A distributed lock keeps one
// instance sweeping at a time.
type Sweeper struct {
	db       domain.Transactor
	bids     domain.BidStore
	holdings domain.HoldingStore
	opps     domain.OpportunityStore
	locks    domain.LockManager
	gateway  *notify.Gateway
	cfg      SweeperConfig
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(
	db domain.Transactor,
	bids domain.BidStore,
	holdings domain.HoldingStore,
	opps domain.OpportunityStore,
	locks domain.LockManager,
	gateway *notify.Gateway,
	cfg SweeperConfig,
	logger *slog.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 48 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		db:       db,
		bids:     bids,
		holdings: holdings,
		opps:     opps,
		locks:    locks,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps on the configured interval until ctx is cancelled. The first
// sweep happens immediately.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep takes the leader lock and runs one scan. Losing the lock to another
// instance is normal and logged at debug.
func (s *Sweeper) sweep(ctx context.Context) {
	release, err := s.locks.Acquire(ctx, sweepLockKey, s.cfg.Interval)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "sweep lock held elsewhere, skipping")
			return
		}
		s.logger.ErrorContext(ctx, "acquire sweep lock failed", slog.String("error", err.Error()))
		return
	}
	defer release()

	start := time.Now()
	reminded, err := s.sweepOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "sweep complete",
		slog.Int("reminders", reminded),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// sweepOnce scans each stall point once and returns the reminder count.
// Reminders re-fire on later sweeps while the stall persists; StaleAfter and
// Interval together bound the nag rate.
func (s *Sweeper) sweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.StaleAfter)
	reminded := 0

	// Sellers claimed completion; buyers have not verified.
	staleBids, err := s.bids.ListStale(ctx, domain.BidStatusCompletionPending, cutoff, s.cfg.BatchSize)
	if err != nil {
		return reminded, fmt.Errorf("sweeper: list stale bids: %w", err)
	}
	for _, bid := range staleBids {
		opp, err := s.opps.GetByID(ctx, bid.OpportunityID)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep: load opportunity failed",
				slog.String("opportunity_id", bid.OpportunityID),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.remindOrg(ctx, opp.BuyerOrgID,
			"Completion awaiting verification",
			fmt.Sprintf("The seller reported %q complete and is waiting on your verification.", opp.Title),
			opp.ID, bid.ID); err != nil {
			return reminded, err
		}
		reminded++
	}

	// Escrow records stalled before funds arrived.
	staleRecs, err := s.holdings.ListStale(ctx,
		[]domain.HoldingStatus{domain.HoldingStatusPending, domain.HoldingStatusInstructionsSent},
		cutoff, s.cfg.BatchSize)
	if err != nil {
		return reminded, fmt.Errorf("sweeper: list stale holding records: %w", err)
	}
	for _, rec := range staleRecs {
		opp, err := s.opps.GetByID(ctx, rec.OpportunityID)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep: load opportunity failed",
				slog.String("opportunity_id", rec.OpportunityID),
				slog.String("error", err.Error()))
			continue
		}
		switch rec.Status {
		case domain.HoldingStatusPending:
			// Operations has not issued instructions yet.
			if err := s.remindOperations(ctx,
				"Payment instructions overdue",
				fmt.Sprintf("Holding record %s for %q is still awaiting payment instructions.", rec.ID, opp.Title),
				opp.ID, rec.BidID); err != nil {
				return reminded, err
			}
		case domain.HoldingStatusInstructionsSent:
			// Buyer has instructions but no payment has landed.
			if err := s.remindOrg(ctx, opp.BuyerOrgID,
				"Payment outstanding",
				fmt.Sprintf("Payment of %s for %q has not been received yet.", rec.BuyerTotal.StringFixed(2), opp.Title),
				opp.ID, rec.BidID); err != nil {
				return reminded, err
			}
		}
		reminded++
	}

	return reminded, nil
}

// remindOrg persists a reminder row per member of orgID and dispatches one
// external copy.
func (s *Sweeper) remindOrg(ctx context.Context, orgID, title, message, opportunityID, bidID string) error {
	var out []outbound
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		return notifyOrg(ctx, tx, s.gateway, &out, orgID,
			domain.NotificationSweepReminder, title, message, &opportunityID, &bidID)
	})
	if err != nil {
		return fmt.Errorf("sweeper: remind org %s: %w", orgID, err)
	}
	for _, o := range out {
		s.gateway.Dispatch(o.typ, o.title, o.message)
	}
	return nil
}

func (s *Sweeper) remindOperations(ctx context.Context, title, message, opportunityID, bidID string) error {
	var out []outbound
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		return notifyOperations(ctx, tx, s.gateway, &out,
			domain.NotificationSweepReminder, title, message, &opportunityID, &bidID)
	})
	if err != nil {
		return fmt.Errorf("sweeper: remind operations: %w", err)
	}
	for _, o := range out {
		s.gateway.Dispatch(o.typ, o.title, o.message)
	}
	return nil
}
