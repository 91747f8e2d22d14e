package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// OpportunityService manages the buyer-posted engagements that bids compete
// for. Creation and publication are simple store writes; the in_progress and
// completed moves belong to the bid machine and happen inside its
// transactions.
type OpportunityService struct {
	db     domain.Transactor
	opps   domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityService creates an OpportunityService.
func NewOpportunityService(db domain.Transactor, opps domain.OpportunityStore, logger *slog.Logger) *OpportunityService {
	return &OpportunityService{
		db:     db,
		opps:   opps,
		logger: logger.With(slog.String("component", "opportunity_service")),
	}
}

// Create posts a new draft opportunity for buyerOrgID.
func (s *OpportunityService) Create(ctx context.Context, buyerOrgID, title, description string, priceFloor decimal.Decimal) (domain.Opportunity, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Opportunity{}, fmt.Errorf("opportunity_service: create: title is required: %w", domain.ErrInvalidInput)
	}
	if priceFloor.IsNegative() {
		return domain.Opportunity{}, fmt.Errorf("opportunity_service: create: price floor cannot be negative: %w", domain.ErrInvalidInput)
	}

	opp := domain.Opportunity{
		ID:          uuid.New().String(),
		BuyerOrgID:  buyerOrgID,
		Title:       title,
		Description: description,
		PriceFloor:  priceFloor,
		Status:      domain.OpportunityStatusDraft,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.opps.Create(ctx, opp); err != nil {
		return domain.Opportunity{}, fmt.Errorf("opportunity_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "opportunity created",
		slog.String("opportunity_id", opp.ID),
		slog.String("buyer_org_id", buyerOrgID),
	)
	return opp, nil
}

// Publish opens a draft opportunity to seller bids.
func (s *OpportunityService) Publish(ctx context.Context, opportunityID string) (domain.Opportunity, error) {
	var opp domain.Opportunity
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		var err error
		opp, err = tx.OpportunityForUpdate(ctx, opportunityID)
		if err != nil {
			return fmt.Errorf("opportunity_service: publish: %w", err)
		}
		if opp.Status != domain.OpportunityStatusDraft && opp.Status != domain.OpportunityStatusPendingApproval {
			return &domain.GuardError{Entity: "opportunity", ID: opp.ID, Op: "publish", Status: string(opp.Status)}
		}

		if err := tx.UpdateOpportunityStatus(ctx, opp.ID, domain.OpportunityStatusPublished); err != nil {
			return fmt.Errorf("opportunity_service: publish: %w", err)
		}
		opp.Status = domain.OpportunityStatusPublished
		return nil
	})
	if err != nil {
		return domain.Opportunity{}, err
	}

	s.logger.InfoContext(ctx, "opportunity published",
		slog.String("opportunity_id", opp.ID),
	)
	return opp, nil
}

// Cancel withdraws a published opportunity before any bid wins it. Declining
// outstanding open bids is the buyer's own step; an opportunity that already
// has an active bid cannot be cancelled here.
func (s *OpportunityService) Cancel(ctx context.Context, opportunityID string) (domain.Opportunity, error) {
	var opp domain.Opportunity
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		var err error
		opp, err = tx.OpportunityForUpdate(ctx, opportunityID)
		if err != nil {
			return fmt.Errorf("opportunity_service: cancel: %w", err)
		}
		switch opp.Status {
		case domain.OpportunityStatusDraft, domain.OpportunityStatusPendingApproval, domain.OpportunityStatusPublished:
		default:
			return &domain.GuardError{Entity: "opportunity", ID: opp.ID, Op: "cancel", Status: string(opp.Status)}
		}

		if err := tx.UpdateOpportunityStatus(ctx, opp.ID, domain.OpportunityStatusCancelled); err != nil {
			return fmt.Errorf("opportunity_service: cancel: %w", err)
		}
		opp.Status = domain.OpportunityStatusCancelled
		return nil
	})
	if err != nil {
		return domain.Opportunity{}, err
	}

	s.logger.InfoContext(ctx, "opportunity cancelled",
		slog.String("opportunity_id", opp.ID),
	)
	return opp, nil
}

// Get retrieves an opportunity by ID.
func (s *OpportunityService) Get(ctx context.Context, id string) (domain.Opportunity, error) {
	opp, err := s.opps.GetByID(ctx, id)
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("opportunity_service: get %q: %w", id, err)
	}
	return opp, nil
}

// ListPublished returns opportunities currently open for bidding.
func (s *OpportunityService) ListPublished(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	opps, err := s.opps.ListByStatus(ctx, domain.OpportunityStatusPublished, opts)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list published: %w", err)
	}
	return opps, nil
}

// ListByBuyer returns a buyer org's opportunities in every status.
func (s *OpportunityService) ListByBuyer(ctx context.Context, buyerOrgID string, opts domain.ListOpts) ([]domain.Opportunity, error) {
	opps, err := s.opps.ListByBuyer(ctx, buyerOrgID, opts)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list by buyer %q: %w", buyerOrgID, err)
	}
	return opps, nil
}
