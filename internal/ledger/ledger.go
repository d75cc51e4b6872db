// Package ledger owns accounts and their append-only transaction log.
//
// Balances are never written directly: every change is a posting that the
// store applies atomically together with its immutable ledger row. The
// service serializes mutations per account through a lock.Locker so two
// callers never interleave a read-modify-write of the same balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/lock"
	"github.com/atmx/hedge-engine/internal/metrics"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/precision"
	"github.com/atmx/hedge-engine/internal/store"
)

// Tolerance is the largest balance drift Reconcile accepts.
var Tolerance = decimal.New(1, -6)

var maxCommission = decimal.NewFromInt(10)

// Defaults fill in account fields the caller leaves empty.
type Defaults struct {
	Currency   string
	Commission decimal.Decimal
}

// AccountSpec describes an account to open.
type AccountSpec struct {
	Name       string              `json:"name"`
	Owner      string              `json:"owner"`
	Role       model.AccountRole   `json:"type"`
	Currency   string              `json:"currency"`
	Commission decimal.NullDecimal `json:"commission"`
	Notes      string              `json:"notes"`
}

// TransferSpec moves funds between two accounts of the same currency.
type TransferSpec struct {
	From   string          `json:"from_account_id"`
	To     string          `json:"to_account_id"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// Service is the ledger component.
type Service struct {
	store    store.Store
	locker   lock.Locker
	defaults Defaults
	now      func() time.Time
}

// New creates a ledger over st, serializing writers with locker.
func New(st store.Store, locker lock.Locker, defaults Defaults) *Service {
	if defaults.Currency == "" {
		defaults.Currency = "EUR"
	}
	return &Service{
		store:    st,
		locker:   locker,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount opens an account with zero balances.
func (s *Service) CreateAccount(ctx context.Context, spec AccountSpec) (*model.Account, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: account name is required", model.ErrInvalidArgument)
	}
	if !spec.Role.Valid() {
		return nil, fmt.Errorf("%w: account type must be %q or %q, got %q",
			model.ErrInvalidArgument, model.RoleOrigin, model.RoleHedge, spec.Role)
	}

	commission := s.defaults.Commission
	if spec.Commission.Valid {
		commission = spec.Commission.Decimal
	}
	if commission.IsNegative() || commission.GreaterThan(maxCommission) {
		return nil, fmt.Errorf("%w: commission must be between 0 and %s, got %s",
			model.ErrInvalidArgument, maxCommission, commission)
	}

	currency := strings.ToUpper(strings.TrimSpace(spec.Currency))
	if currency == "" {
		currency = s.defaults.Currency
	}

	now := s.now()
	a := &model.Account{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Name:         name,
		Owner:        strings.TrimSpace(spec.Owner),
		Role:         spec.Role,
		Currency:     currency,
		Commission:   commission,
		Balance:      decimal.Zero,
		BonusBalance: decimal.Zero,
		Notes:        spec.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	slog.Info("account created", "account_id", a.ID, "name", a.Name, "type", a.Role, "currency", a.Currency)
	return a, nil
}

// Account returns one account.
func (s *Service) Account(ctx context.Context, id string) (*model.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// Accounts lists every account.
func (s *Service) Accounts(ctx context.Context) ([]model.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Transactions lists ledger rows matching f, oldest first.
func (s *Service) Transactions(ctx context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// AppendTransaction books one posting: it reads the balance, writes the
// ledger row with the new balance snapshot and updates the account, all as
// one atomic unit. The amount is rounded half up to cents.
func (s *Service) AppendTransaction(ctx context.Context, p model.Posting) (*model.Transaction, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction kind %q", model.ErrInvalidArgument, p.Kind)
	}
	p.Amount = precision.Money(p.Amount)

	unlock, err := s.locker.Lock(ctx, lock.AccountKey(p.AccountID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	txs, err := s.store.AppendTransactions(ctx, []model.Posting{p})
	if err != nil {
		return nil, err
	}
	tx := txs[0]
	metrics.PostingsTotal.WithLabelValues(string(tx.Kind)).Inc()
	slog.Info("transaction appended",
		"account_id", tx.AccountID,
		"kind", tx.Kind,
		"amount", tx.Amount.String(),
		"balance_after", tx.BalanceAfter.String(),
	)
	return &tx, nil
}

// CurrentBalance returns the stored balance of an account.
func (s *Service) CurrentBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

// RequiredTopUp returns how much must be deposited before the account can
// cover required: max(required - balance, 0). It never mutates.
func (s *Service) RequiredTopUp(ctx context.Context, id string, required decimal.Decimal) (decimal.Decimal, error) {
	balance, err := s.CurrentBalance(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return TopUp(balance, required), nil
}

// TopUp is max(required - available, 0).
func TopUp(available, required decimal.Decimal) decimal.Decimal {
	return decimal.Max(required.Sub(available), decimal.Zero)
}

// Reconcile recomputes the account's balance from its transactions and
// compares it with the stored one. A mismatch is logged and counted but
// never repaired.
func (s *Service) Reconcile(ctx context.Context, id string) (bool, error) {
	unlock, err := s.locker.Lock(ctx, lock.AccountKey(id))
	if err != nil {
		return false, err
	}
	defer unlock()

	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{AccountID: id})
	if err != nil {
		return false, err
	}
	return s.check(a, sum(txs)) == nil, nil
}

// ReconcileAll checks every account against one consistent snapshot and
// returns a *model.ReconciliationError per failing account, joined.
func (s *Service) ReconcileAll(ctx context.Context) error {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	sums := make(map[string]decimal.Decimal, len(snap.Accounts))
	for _, tx := range snap.Transactions {
		sums[tx.AccountID] = sums[tx.AccountID].Add(tx.Amount)
	}

	var errs []error
	for i := range snap.Accounts {
		if err := s.check(&snap.Accounts[i], sums[snap.Accounts[i].ID]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) check(a *model.Account, computed decimal.Decimal) error {
	if a.Balance.Sub(computed).Abs().LessThan(Tolerance) {
		return nil
	}
	metrics.ReconciliationFailures.Inc()
	slog.Error("ledger reconciliation mismatch",
		"account_id", a.ID,
		"stored", a.Balance.String(),
		"computed", computed.String(),
	)
	return &model.ReconciliationError{AccountID: a.ID, Stored: a.Balance, Computed: computed}
}

// Transfer moves funds between two accounts as one atomic pair of
// transfer_out and transfer_in rows.
func (s *Service) Transfer(ctx context.Context, spec TransferSpec) ([]model.Transaction, error) {
	amount := precision.Money(spec.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: transfer amount must be positive, got %s", model.ErrInvalidArgument, spec.Amount)
	}
	if spec.From == spec.To {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", model.ErrInvalidArgument)
	}

	unlock, err := lock.LockAll(ctx, s.locker, lock.AccountKey(spec.From), lock.AccountKey(spec.To))
	if err != nil {
		return nil, err
	}
	defer unlock()

	from, err := s.store.GetAccount(ctx, spec.From)
	if err != nil {
		return nil, err
	}
	to, err := s.store.GetAccount(ctx, spec.To)
	if err != nil {
		return nil, err
	}
	if from.Currency != to.Currency {
		return nil, fmt.Errorf("%w: cannot transfer %s to a %s account", model.ErrInvalidArgument, from.Currency, to.Currency)
	}
	if missing := TopUp(from.Balance, amount); missing.IsPositive() {
		return nil, &model.InsufficientFundsError{Shortfalls: []model.Shortfall{{
			AccountID: from.ID,
			Required:  amount,
			Available: from.Balance,
			Missing:   missing,
		}}}
	}

	note := spec.Note
	if note == "" {
		note = fmt.Sprintf("transfer %s -> %s", from.Name, to.Name)
	}
	txs, err := s.store.AppendTransactions(ctx, []model.Posting{
		{AccountID: from.ID, Kind: model.KindTransferOut, Amount: amount.Neg(), Note: note},
		{AccountID: to.ID, Kind: model.KindTransferIn, Amount: amount, Note: note},
	})
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		metrics.PostingsTotal.WithLabelValues(string(tx.Kind)).Inc()
	}
	slog.Info("transfer booked", "from", from.ID, "to", to.ID, "amount", amount.String())
	return txs, nil
}

func sum(txs []model.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}
