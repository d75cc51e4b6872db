// Package operation runs the lifecycle of hedge operations.
//
// An operation is created PENDIENTE with its stake and exposure locked in
// the ledger, and leaves that state exactly once: settled with an outcome
// or cancelled. Every transition is committed as one store unit together
// with its postings, so a reader never sees a status without its funds
// movement or the reverse.
//
// Lock order is operation key first, then the account keys in sorted
// order. Ledger writers only ever take account keys, so the two can never
// wait on each other in a cycle.
package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/calculator"
	"github.com/atmx/hedge-engine/internal/ledger"
	"github.com/atmx/hedge-engine/internal/lock"
	"github.com/atmx/hedge-engine/internal/metrics"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/store"
)

// Event types published after a committed transition.
const (
	EventCreated   = "operation_created"
	EventUpdated   = "operation_updated"
	EventSettled   = "operation_settled"
	EventCancelled = "operation_cancelled"
)

// Event describes one committed lifecycle transition.
type Event struct {
	Type      string          `json:"type"`
	Operation model.Operation `json:"operation"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notifier receives lifecycle events. Publish must not block.
type Notifier interface {
	Publish(Event)
}

// Request opens or amends an operation. On Update, empty fields keep the
// operation's current value.
type Request struct {
	OriginAccountID string              `json:"origin_account_id"`
	HedgeAccountID  string              `json:"hedge_account_id"`
	Event           string              `json:"event"`
	Mode            model.Mode          `json:"mode"`
	StakeSource     model.StakeSource   `json:"stake_source"`
	Stake           decimal.Decimal     `json:"stake_a"`
	OddsA           decimal.Decimal     `json:"odds_a"`
	OddsB           decimal.Decimal     `json:"odds_b"`
	Commission      decimal.NullDecimal `json:"commission_b"`
	Notes           string              `json:"notes"`
}

// Manager is the operation lifecycle component.
type Manager struct {
	store    store.Store
	ledger   *ledger.Service
	locker   lock.Locker
	notifier Notifier
	now      func() time.Time
}

// NewManager creates a lifecycle manager. notifier may be nil.
func NewManager(st store.Store, l *ledger.Service, locker lock.Locker, notifier Notifier) *Manager {
	return &Manager{
		store:    st,
		ledger:   l,
		locker:   locker,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create sizes the hedge, checks both accounts can cover their locks and
// commits the pending operation together with its lock postings.
func (m *Manager) Create(ctx context.Context, req Request) (*model.Operation, error) {
	start := time.Now()
	defer metrics.Since("create", start)

	req.Event = strings.TrimSpace(req.Event)
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	origin, err := m.ledger.Account(ctx, req.OriginAccountID)
	if err != nil {
		return nil, err
	}
	hedge, err := m.ledger.Account(ctx, req.HedgeAccountID)
	if err != nil {
		return nil, err
	}
	commission := hedge.Commission
	if req.Commission.Valid {
		commission = req.Commission.Decimal
	}

	in := calculator.Input{
		Stake:         req.Stake,
		OddsA:         req.OddsA,
		OddsB:         req.OddsB,
		CommissionPct: commission,
		Mode:          req.Mode,
		Source:        req.StakeSource,
	}
	res, err := calculator.Compute(in)
	if err != nil {
		return nil, err
	}

	op := &model.Operation{
		ID:              uuid.Must(uuid.NewV7()).String(),
		Timestamp:       m.now(),
		OriginAccountID: origin.ID,
		HedgeAccountID:  hedge.ID,
		Event:           req.Event,
		Status:          model.StatusPending,
		Notes:           req.Notes,
	}
	freeze(op, in, res)

	unlock, err := m.lockOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	locks := lockPostings(op)
	if err := m.checkFunds(ctx, op.ID, locks, nil); err != nil {
		return nil, err
	}

	if _, err := m.store.CreateOperation(ctx, op, locks); err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	metrics.OperationsTotal.WithLabelValues(string(op.Mode)).Inc()
	metrics.StakeVolume.WithLabelValues(string(op.Mode)).Add(op.Stake.InexactFloat64())
	metrics.PendingOperations.Inc()
	slog.Info("operation created",
		"operation_id", op.ID,
		"event", op.Event,
		"mode", op.Mode,
		"stake", op.Stake.String(),
		"hedge_stake", op.HedgeStake.String(),
		"exposure", op.Exposure.String(),
	)
	m.publish(EventCreated, op)
	return op, nil
}

// Settle resolves a pending operation with outcome GANA_A, GANA_B or
// ANULADA and books the matching postings.
func (m *Manager) Settle(ctx context.Context, id, outcome, note string) (*model.Operation, error) {
	start := time.Now()
	defer metrics.Since("settle", start)

	unlock, err := m.locker.Lock(ctx, lock.OperationKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	op, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: operation %s is %s", model.ErrAlreadySettled, op.ID, op.Status)
	}
	to, err := model.ParseOutcome(outcome)
	if err != nil {
		return nil, err
	}

	settled, err := m.transition(ctx, op, to, note, settlementPostings(op, to))
	if errors.Is(err, model.ErrWrongState) {
		return nil, fmt.Errorf("%w: %v", model.ErrAlreadySettled, err)
	}
	if err != nil {
		return nil, err
	}
	m.publish(EventSettled, settled)
	return settled, nil
}

// Cancel releases the locks of a pending operation without booking any
// profit or loss.
func (m *Manager) Cancel(ctx context.Context, id, note string) (*model.Operation, error) {
	start := time.Now()
	defer metrics.Since("cancel", start)

	unlock, err := m.locker.Lock(ctx, lock.OperationKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	op, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: operation %s is %s, only %s can be cancelled",
			model.ErrWrongState, op.ID, op.Status, model.StatusPending)
	}
	if strings.TrimSpace(note) == "" {
		note = noteCancelled
	}

	cancelled, err := m.transition(ctx, op, model.StatusCancelled, note, releasePostings(op, noteCancelled))
	if err != nil {
		return nil, err
	}
	m.publish(EventCancelled, cancelled)
	return cancelled, nil
}

// Update re-sizes a pending operation. The old locks are released and the
// new ones taken in the same store unit, and sufficiency counts the funds
// the release gives back.
func (m *Manager) Update(ctx context.Context, id string, req Request) (*model.Operation, error) {
	start := time.Now()
	defer metrics.Since("update", start)

	unlock, err := m.locker.Lock(ctx, lock.OperationKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: operation %s is %s, only %s can be edited",
			model.ErrWrongState, cur.ID, cur.Status, model.StatusPending)
	}

	req = merge(cur, req)
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if _, err := m.ledger.Account(ctx, req.OriginAccountID); err != nil {
		return nil, err
	}
	hedge, err := m.ledger.Account(ctx, req.HedgeAccountID)
	if err != nil {
		return nil, err
	}
	commission := cur.Commission
	if req.Commission.Valid {
		commission = req.Commission.Decimal
	} else if hedge.ID != cur.HedgeAccountID {
		commission = hedge.Commission
	}

	in := calculator.Input{
		Stake:         req.Stake,
		OddsA:         req.OddsA,
		OddsB:         req.OddsB,
		CommissionPct: commission,
		Mode:          req.Mode,
		Source:        req.StakeSource,
	}
	res, err := calculator.Compute(in)
	if err != nil {
		return nil, err
	}

	next := *cur
	next.OriginAccountID = req.OriginAccountID
	next.HedgeAccountID = req.HedgeAccountID
	next.Event = req.Event
	next.Notes = req.Notes
	freeze(&next, in, res)

	unlockAccounts, err := lock.LockAll(ctx, m.locker,
		lock.AccountKey(cur.OriginAccountID), lock.AccountKey(cur.HedgeAccountID),
		lock.AccountKey(next.OriginAccountID), lock.AccountKey(next.HedgeAccountID))
	if err != nil {
		return nil, err
	}
	defer unlockAccounts()

	releases := releasePostings(cur, noteAmended)
	locks := lockPostings(&next)
	if err := m.checkFunds(ctx, cur.ID, locks, releases); err != nil {
		return nil, err
	}

	if _, err := m.store.AmendOperation(ctx, &next, append(releases, locks...)); err != nil {
		return nil, fmt.Errorf("update operation %s: %w", cur.ID, err)
	}

	slog.Info("operation updated",
		"operation_id", next.ID,
		"stake", next.Stake.String(),
		"hedge_stake", next.HedgeStake.String(),
		"exposure", next.Exposure.String(),
	)
	m.publish(EventUpdated, &next)
	return &next, nil
}

// Get returns one operation.
func (m *Manager) Get(ctx context.Context, id string) (*model.Operation, error) {
	return m.store.GetOperation(ctx, id)
}

// List returns operations matching f, newest first.
func (m *Manager) List(ctx context.Context, f store.OperationFilter) ([]model.Operation, error) {
	return m.store.ListOperations(ctx, f)
}

// lockOperation takes the key of a new operation followed by its accounts.
func (m *Manager) lockOperation(ctx context.Context, op *model.Operation) (func(), error) {
	unlockOp, err := m.locker.Lock(ctx, lock.OperationKey(op.ID))
	if err != nil {
		return nil, err
	}
	unlockAccounts, err := lock.LockAll(ctx, m.locker,
		lock.AccountKey(op.OriginAccountID), lock.AccountKey(op.HedgeAccountID))
	if err != nil {
		unlockOp()
		return nil, err
	}
	return func() {
		unlockAccounts()
		unlockOp()
	}, nil
}

// transition takes the account locks of op and commits the status flip with
// its postings. The caller holds the operation lock.
func (m *Manager) transition(ctx context.Context, op *model.Operation, to model.Status, note string, postings []model.Posting) (*model.Operation, error) {
	unlock, err := lock.LockAll(ctx, m.locker,
		lock.AccountKey(op.OriginAccountID), lock.AccountKey(op.HedgeAccountID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := m.now()
	if _, err := m.store.TransitionOperation(ctx, model.Transition{
		OperationID: op.ID,
		From:        model.StatusPending,
		To:          to,
		At:          now,
		Note:        note,
		Postings:    postings,
	}); err != nil {
		return nil, fmt.Errorf("%s operation %s: %w", to, op.ID, err)
	}

	out := *op
	out.Status = to
	out.SettledAt = &now
	out.SettlementNote = note

	metrics.SettlementsTotal.WithLabelValues(to.String()).Inc()
	metrics.PendingOperations.Dec()
	slog.Info("operation resolved",
		"operation_id", op.ID,
		"status", to,
		"postings", len(postings),
	)
	return &out, nil
}

// checkFunds verifies every account can cover its new locks once the
// given releases are credited back, and reports all shortfalls at once.
// Account locks must be held.
func (m *Manager) checkFunds(ctx context.Context, opID string, locks, releases []model.Posting) error {
	required := make(map[string]decimal.Decimal)
	var order []string
	for _, p := range locks {
		if _, seen := required[p.AccountID]; !seen {
			order = append(order, p.AccountID)
		}
		required[p.AccountID] = required[p.AccountID].Sub(p.Amount)
	}
	credit := make(map[string]decimal.Decimal)
	for _, p := range releases {
		credit[p.AccountID] = credit[p.AccountID].Add(p.Amount)
	}

	var shortfalls []model.Shortfall
	for _, id := range order {
		balance, err := m.ledger.CurrentBalance(ctx, id)
		if err != nil {
			return err
		}
		available := balance.Add(credit[id])
		if missing := ledger.TopUp(available, required[id]); missing.IsPositive() {
			shortfalls = append(shortfalls, model.Shortfall{
				AccountID: id,
				Required:  required[id],
				Available: available,
				Missing:   missing,
			})
		}
	}
	if len(shortfalls) == 0 {
		return nil
	}

	metrics.InsufficientFundsRejections.Inc()
	err := &model.InsufficientFundsError{Shortfalls: shortfalls}
	slog.Warn("operation rejected", "operation_id", opID, "err", err)
	return err
}

func (m *Manager) publish(kind string, op *model.Operation) {
	if m.notifier == nil {
		return
	}
	m.notifier.Publish(Event{Type: kind, Operation: *op, Timestamp: m.now()})
}

func checkRequest(req Request) error {
	if req.OriginAccountID == "" || req.HedgeAccountID == "" {
		return fmt.Errorf("%w: origin and hedge accounts are required", model.ErrInvalidArgument)
	}
	if req.OriginAccountID == req.HedgeAccountID {
		return fmt.Errorf("%w: origin and hedge must be different accounts", model.ErrInvalidArgument)
	}
	if req.Event == "" {
		return fmt.Errorf("%w: event is required", model.ErrInvalidArgument)
	}
	return nil
}

// merge fills the empty fields of req from the current operation.
func merge(cur *model.Operation, req Request) Request {
	if req.OriginAccountID == "" {
		req.OriginAccountID = cur.OriginAccountID
	}
	if req.HedgeAccountID == "" {
		req.HedgeAccountID = cur.HedgeAccountID
	}
	if req.Event = strings.TrimSpace(req.Event); req.Event == "" {
		req.Event = cur.Event
	}
	if req.Mode == "" {
		req.Mode = cur.Mode
	}
	if req.StakeSource == "" {
		req.StakeSource = cur.StakeSource
	}
	if req.Stake.IsZero() {
		req.Stake = cur.Stake
	}
	if req.OddsA.IsZero() {
		req.OddsA = cur.OddsA
	}
	if req.OddsB.IsZero() {
		req.OddsB = cur.OddsB
	}
	if req.Notes == "" {
		req.Notes = cur.Notes
	}
	return req
}

// freeze copies the calculator input and output onto op.
func freeze(op *model.Operation, in calculator.Input, res calculator.Result) {
	op.Mode = in.Mode
	op.StakeSource = in.Source
	op.Stake = in.Stake
	op.OddsA = in.OddsA
	op.OddsB = in.OddsB
	op.Commission = in.CommissionPct
	op.HedgeStake = res.HedgeStake
	op.Exposure = res.Exposure
	op.ProfitIfA = res.ProfitIfA
	op.ProfitIfB = res.ProfitIfB
	op.QualifyingLoss = res.QualifyingLoss
	op.CreditBenefit = res.CreditBenefit
	op.CreditYield = res.CreditYield
	op.Rating = res.Rating
}
