package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/notify"
)

// In-memory workflow storage for service tests. Implements the store
// interfaces and Transactor with real rollback semantics so mid-transaction
// failures can be asserted against. Not safe for concurrent use; tests
// exercise races by sequencing the conflicting calls.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGateway() *notify.Gateway {
	return notify.NewGateway(notify.NewNotifier(nil, nil, testLogger()), testLogger())
}

type memState struct {
	opps          map[string]domain.Opportunity
	bids          map[string]domain.Bid
	holdings      map[string]domain.HoldingRecord
	notifications []domain.Notification
	members       map[string][]domain.Member
	opsMembers    []domain.Member
}

func newMemState() *memState {
	return &memState{
		opps:     make(map[string]domain.Opportunity),
		bids:     make(map[string]domain.Bid),
		holdings: make(map[string]domain.HoldingRecord),
		members:  make(map[string][]domain.Member),
	}
}

// --- store interfaces ---

func (m *memState) Create(_ context.Context, opp domain.Opportunity) error {
	if _, ok := m.opps[opp.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.opps[opp.ID] = opp
	return nil
}

func (m *memState) GetByID(_ context.Context, id string) (domain.Bid, error) {
	bid, ok := m.bids[id]
	if !ok {
		return domain.Bid{}, domain.ErrNotFound
	}
	return bid, nil
}

func (m *memState) ListByOpportunity(_ context.Context, opportunityID string, _ domain.ListOpts) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range m.bids {
		if b.OpportunityID == opportunityID {
			out = append(out, b)
		}
	}
	sortBids(out)
	return out, nil
}

func (m *memState) ListBySeller(_ context.Context, sellerOrgID string, _ domain.ListOpts) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range m.bids {
		if b.SellerOrgID == sellerOrgID {
			out = append(out, b)
		}
	}
	sortBids(out)
	return out, nil
}

func (m *memState) ListStale(_ context.Context, status domain.BidStatus, olderThan time.Time, limit int) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range m.bids {
		if b.Status == status && b.UpdatedAt.Before(olderThan) {
			out = append(out, b)
		}
	}
	sortBids(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortBids(bids []domain.Bid) {
	sort.Slice(bids, func(i, j int) bool { return bids[i].ID < bids[j].ID })
}

// oppStore adapts memState to domain.OpportunityStore; the method set
// collides with BidStore otherwise.
type oppStore struct{ s *memState }

func (o oppStore) Create(ctx context.Context, opp domain.Opportunity) error {
	return o.s.Create(ctx, opp)
}

func (o oppStore) GetByID(_ context.Context, id string) (domain.Opportunity, error) {
	opp, ok := o.s.opps[id]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return opp, nil
}

func (o oppStore) UpdateStatus(_ context.Context, id string, status domain.OpportunityStatus) error {
	opp, ok := o.s.opps[id]
	if !ok {
		return domain.ErrNotFound
	}
	opp.Status = status
	opp.UpdatedAt = time.Now().UTC()
	o.s.opps[id] = opp
	return nil
}

func (o oppStore) ListByStatus(_ context.Context, status domain.OpportunityStatus, _ domain.ListOpts) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, opp := range o.s.opps {
		if opp.Status == status {
			out = append(out, opp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (o oppStore) ListByBuyer(_ context.Context, buyerOrgID string, _ domain.ListOpts) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, opp := range o.s.opps {
		if opp.BuyerOrgID == buyerOrgID {
			out = append(out, opp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// holdingStore adapts memState to domain.HoldingStore.
type holdingStore struct{ s *memState }

func (h holdingStore) GetByID(_ context.Context, id string) (domain.HoldingRecord, error) {
	rec, ok := h.s.holdings[id]
	if !ok {
		return domain.HoldingRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (h holdingStore) GetByBidID(_ context.Context, bidID string) (domain.HoldingRecord, error) {
	for _, rec := range h.s.holdings {
		if rec.BidID == bidID {
			return rec, nil
		}
	}
	return domain.HoldingRecord{}, domain.ErrNotFound
}

func (h holdingStore) ListStale(_ context.Context, statuses []domain.HoldingStatus, olderThan time.Time, limit int) ([]domain.HoldingRecord, error) {
	var out []domain.HoldingRecord
	for _, rec := range h.s.holdings {
		for _, st := range statuses {
			if rec.Status == st && rec.UpdatedAt.Before(olderThan) {
				out = append(out, rec)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// notificationStore adapts memState to domain.NotificationStore.
type notificationStore struct{ s *memState }

func (n notificationStore) ListByRecipient(_ context.Context, recipientID string, _ domain.ListOpts) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, row := range n.s.notifications {
		if row.RecipientID == recipientID {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- transactor ---

type memDB struct {
	s *memState

	// fault injection
	failCreateHolding  bool
	failNotifications  bool
	failUpdateHolding  bool
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.WorkflowTx) error) error {
	snap := db.snapshot()
	if err := fn(ctx, &memTx{db: db}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *memDB) snapshot() *memState {
	snap := newMemState()
	for k, v := range db.s.opps {
		snap.opps[k] = v
	}
	for k, v := range db.s.bids {
		snap.bids[k] = v
	}
	for k, v := range db.s.holdings {
		snap.holdings[k] = v
	}
	snap.notifications = append([]domain.Notification(nil), db.s.notifications...)
	return snap
}

func (db *memDB) restore(snap *memState) {
	db.s.opps = snap.opps
	db.s.bids = snap.bids
	db.s.holdings = snap.holdings
	db.s.notifications = snap.notifications
}

type memTx struct{ db *memDB }

func (t *memTx) OpportunityForUpdate(ctx context.Context, id string) (domain.Opportunity, error) {
	return oppStore{t.db.s}.GetByID(ctx, id)
}

func (t *memTx) BidForUpdate(ctx context.Context, id string) (domain.Bid, error) {
	return t.db.s.GetByID(ctx, id)
}

func (t *memTx) OpenBidsForUpdate(_ context.Context, opportunityID string) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range t.db.s.bids {
		if b.OpportunityID == opportunityID && b.Status.Open() {
			out = append(out, b)
		}
	}
	sortBids(out)
	return out, nil
}

func (t *memTx) HoldingForUpdate(ctx context.Context, id string) (domain.HoldingRecord, error) {
	return holdingStore{t.db.s}.GetByID(ctx, id)
}

func (t *memTx) CreateBid(_ context.Context, bid domain.Bid) error {
	for _, b := range t.db.s.bids {
		if b.OpportunityID == bid.OpportunityID && b.SellerOrgID == bid.SellerOrgID {
			return domain.ErrAlreadyExists
		}
	}
	bid.UpdatedAt = bid.CreatedAt
	t.db.s.bids[bid.ID] = bid
	return nil
}

func (t *memTx) CreateHolding(_ context.Context, rec domain.HoldingRecord) error {
	if t.db.failCreateHolding {
		return fmt.Errorf("storage unavailable")
	}
	for _, r := range t.db.s.holdings {
		if r.BidID == rec.BidID {
			return domain.ErrAlreadyExists
		}
	}
	rec.UpdatedAt = rec.CreatedAt
	t.db.s.holdings[rec.ID] = rec
	return nil
}

func (t *memTx) CreateNotifications(_ context.Context, ns []domain.Notification) error {
	if t.db.failNotifications {
		return fmt.Errorf("storage unavailable")
	}
	t.db.s.notifications = append(t.db.s.notifications, ns...)
	return nil
}

func (t *memTx) UpdateBidStatus(_ context.Context, id string, status domain.BidStatus, declineReason string) error {
	bid, ok := t.db.s.bids[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	bid.Status = status
	bid.UpdatedAt = now
	switch status {
	case domain.BidStatusApproved:
		bid.ApprovedAt = &now
	case domain.BidStatusLive:
		bid.LiveAt = &now
	case domain.BidStatusCompletionPending:
		bid.CompletionRequestedAt = &now
	case domain.BidStatusCompleted:
		bid.CompletedAt = &now
	case domain.BidStatusDeclined:
		bid.DeclinedAt = &now
		bid.DeclineReason = declineReason
	}
	t.db.s.bids[id] = bid
	return nil
}

func (t *memTx) UpdateOpportunityStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	return oppStore{t.db.s}.UpdateStatus(ctx, id, status)
}

func (t *memTx) UpdateHoldingStatus(_ context.Context, id string, status domain.HoldingStatus) error {
	if t.db.failUpdateHolding {
		return fmt.Errorf("storage unavailable")
	}
	rec, ok := t.db.s.holdings[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.UpdatedAt = now
	switch status {
	case domain.HoldingStatusInstructionsSent:
		rec.InstructionsSentAt = &now
	case domain.HoldingStatusPaymentInitiated:
		rec.PaymentInitiatedAt = &now
	case domain.HoldingStatusReceived:
		rec.ReceivedAt = &now
	case domain.HoldingStatusReleased:
		rec.ReleasedAt = &now
	case domain.HoldingStatusCancelled:
		rec.CancelledAt = &now
	}
	t.db.s.holdings[id] = rec
	return nil
}

func (t *memTx) Members(_ context.Context, orgID string) ([]domain.Member, error) {
	return t.db.s.members[orgID], nil
}

func (t *memTx) OperationsMembers(_ context.Context) ([]domain.Member, error) {
	return t.db.s.opsMembers, nil
}

// --- seeded fixtures ---

const (
	buyerOrg  = "org-buyer"
	sellerOrg = "org-seller"
	rivalOrg  = "org-rival"
)

var testFees = FeeSchedule{
	BuyerPct:  decimal.NewFromInt(5),
	SellerPct: decimal.NewFromInt(5),
}

func newTestEnv() (*memState, *memDB) {
	s := newMemState()
	s.members[buyerOrg] = []domain.Member{{ID: "mem-buyer", OrgID: buyerOrg, Email: "buyer@example.com"}}
	s.members[sellerOrg] = []domain.Member{{ID: "mem-seller", OrgID: sellerOrg, Email: "seller@example.com"}}
	s.members[rivalOrg] = []domain.Member{{ID: "mem-rival", OrgID: rivalOrg, Email: "rival@example.com"}}
	s.opsMembers = []domain.Member{{ID: "mem-ops", OrgID: "org-platform", Email: "ops@example.com"}}
	return s, &memDB{s: s}
}

func seedOpportunity(s *memState, status domain.OpportunityStatus) domain.Opportunity {
	opp := domain.Opportunity{
		ID:         "opp-1",
		BuyerOrgID: buyerOrg,
		Title:      "Q3 security audit",
		PriceFloor: decimal.NewFromInt(1000),
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	s.opps[opp.ID] = opp
	return opp
}

func seedBid(s *memState, id, seller string, status domain.BidStatus, amount int64) domain.Bid {
	bid := domain.Bid{
		ID:            id,
		OpportunityID: "opp-1",
		SellerOrgID:   seller,
		Amount:        decimal.NewFromInt(amount),
		Status:        status,
		BuyerFeePct:   testFees.BuyerPct,
		SellerFeePct:  testFees.SellerPct,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	s.bids[bid.ID] = bid
	return bid
}

func seedHolding(s *memState, id, bidID string, status domain.HoldingStatus, amount int64) domain.HoldingRecord {
	fees, err := domain.CalculateFees(decimal.NewFromInt(amount), testFees.BuyerPct, testFees.SellerPct)
	if err != nil {
		panic(err)
	}
	rec := domain.HoldingRecord{
		ID:            id,
		BidID:         bidID,
		OpportunityID: "opp-1",
		Amount:        decimal.NewFromInt(amount),
		BuyerTotal:    fees.BuyerTotal,
		SellerNet:     fees.SellerNet,
		PlatformFee:   fees.PlatformFee,
		BuyerFeePct:   fees.BuyerFeePct,
		SellerFeePct:  fees.SellerFeePct,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	s.holdings[rec.ID] = rec
	return rec
}

func newBidService(db *memDB) *BidService {
	return NewBidService(db, db.s, testGateway(), nil, testFees, testLogger())
}

func newHoldingService(db *memDB) *HoldingService {
	return NewHoldingService(db, holdingStore{db.s}, testGateway(), nil, testLogger())
}

func newOpportunityService(db *memDB) *OpportunityService {
	return NewOpportunityService(db, oppStore{db.s}, testLogger())
}
