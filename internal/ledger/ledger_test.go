package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/lock"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestLedger() (*Service, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return New(st, lock.NewLocal(), Defaults{Currency: "EUR", Commission: d(5)}), st
}

func mustAccount(t *testing.T, l *Service, name string, role model.AccountRole) *model.Account {
	t.Helper()
	a, err := l.CreateAccount(context.Background(), AccountSpec{Name: name, Role: role})
	if err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return a
}

func deposit(t *testing.T, l *Service, id string, amount float64) {
	t.Helper()
	if _, err := l.AppendTransaction(context.Background(), model.Posting{
		AccountID: id, Kind: model.KindDeposit, Amount: d(amount),
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestCreateAccount_Defaults(t *testing.T) {
	l, _ := newTestLedger()
	a, err := l.CreateAccount(context.Background(), AccountSpec{Name: "  Exchange  ", Role: model.RoleHedge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == "" || a.Name != "Exchange" {
		t.Errorf("account = %+v", a)
	}
	if a.Currency != "EUR" || !a.Commission.Equal(d(5)) {
		t.Errorf("defaults not applied: currency %s commission %s", a.Currency, a.Commission)
	}
	if !a.Balance.IsZero() || !a.BonusBalance.IsZero() {
		t.Errorf("new account should have zero balances: %+v", a)
	}
}

func TestCreateAccount_Validation(t *testing.T) {
	l, _ := newTestLedger()
	tests := []struct {
		name string
		spec AccountSpec
	}{
		{"missing name", AccountSpec{Role: model.RoleOrigin}},
		{"unknown role", AccountSpec{Name: "x", Role: "casa"}},
		{"commission too high", AccountSpec{Name: "x", Role: model.RoleHedge, Commission: decimal.NewNullDecimal(d(12))}},
		{"negative commission", AccountSpec{Name: "x", Role: model.RoleHedge, Commission: decimal.NewNullDecimal(d(-1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateAccount(context.Background(), tt.spec)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestAppendTransaction(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	a := mustAccount(t, l, "Bookie", model.RoleOrigin)

	tx, err := l.AppendTransaction(ctx, model.Posting{AccountID: a.ID, Kind: model.KindDeposit, Amount: d(100.005)})
	if err != nil {
		t.Fatal(err)
	}
	if !tx.Amount.Equal(d(100.01)) || !tx.BalanceAfter.Equal(d(100.01)) {
		t.Errorf("tx = %+v, want amount and balance 100.01", tx)
	}

	tx, err = l.AppendTransaction(ctx, model.Posting{AccountID: a.ID, Kind: model.KindWithdrawal, Amount: d(-40)})
	if err != nil {
		t.Fatal(err)
	}
	if !tx.BalanceAfter.Equal(d(60.01)) {
		t.Errorf("balance_after = %s, want 60.01", tx.BalanceAfter)
	}

	if _, err := l.AppendTransaction(ctx, model.Posting{AccountID: "ghost", Kind: model.KindDeposit, Amount: d(1)}); !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("unknown account error = %v", err)
	}
	if _, err := l.AppendTransaction(ctx, model.Posting{AccountID: a.ID, Kind: "gift", Amount: d(1)}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestRequiredTopUp(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	a := mustAccount(t, l, "Bookie", model.RoleOrigin)
	deposit(t, l, a.ID, 20)

	tests := []struct {
		required float64
		want     float64
	}{
		{25, 5},
		{20, 0},
		{10, 0},
	}
	for _, tt := range tests {
		got, err := l.RequiredTopUp(ctx, a.ID, d(tt.required))
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(d(tt.want)) {
			t.Errorf("RequiredTopUp(%v) = %s, want %v", tt.required, got, tt.want)
		}
	}

	bal, _ := l.CurrentBalance(ctx, a.ID)
	if !bal.Equal(d(20)) {
		t.Errorf("probe mutated balance: %s", bal)
	}
	if _, err := l.RequiredTopUp(ctx, "ghost", d(1)); !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("unknown account error = %v", err)
	}
}

func TestTransfer(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	from := mustAccount(t, l, "Bookie", model.RoleOrigin)
	to := mustAccount(t, l, "Exchange", model.RoleHedge)
	deposit(t, l, from.ID, 50)

	txs, err := l.Transfer(ctx, TransferSpec{From: from.ID, To: to.ID, Amount: d(30)})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(txs) != 2 || txs[0].Kind != model.KindTransferOut || txs[1].Kind != model.KindTransferIn {
		t.Fatalf("unexpected rows: %+v", txs)
	}
	fb, _ := l.CurrentBalance(ctx, from.ID)
	tb, _ := l.CurrentBalance(ctx, to.ID)
	if !fb.Equal(d(20)) || !tb.Equal(d(30)) {
		t.Errorf("balances after transfer: from %s to %s", fb, tb)
	}

	_, err = l.Transfer(ctx, TransferSpec{From: from.ID, To: to.ID, Amount: d(25)})
	var ife *model.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("error = %v, want InsufficientFundsError", err)
	}
	if len(ife.Shortfalls) != 1 || !ife.Shortfalls[0].Missing.Equal(d(5)) {
		t.Errorf("shortfalls = %+v", ife.Shortfalls)
	}

	usd, _ := l.CreateAccount(ctx, AccountSpec{Name: "US book", Role: model.RoleOrigin, Currency: "usd"})
	if _, err := l.Transfer(ctx, TransferSpec{From: from.ID, To: usd.ID, Amount: d(1)}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("cross-currency error = %v", err)
	}
	if _, err := l.Transfer(ctx, TransferSpec{From: from.ID, To: from.ID, Amount: d(1)}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("self transfer error = %v", err)
	}
	if _, err := l.Transfer(ctx, TransferSpec{From: from.ID, To: to.ID, Amount: d(0)}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("zero transfer error = %v", err)
	}
}

func TestReconcile_ConcurrentAppends(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	a := mustAccount(t, l, "Bookie", model.RoleOrigin)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := d(1.25)
			if i%3 == 0 {
				amount = d(-0.5)
			}
			if _, err := l.AppendTransaction(ctx, model.Posting{AccountID: a.ID, Kind: model.KindAdjustment, Amount: amount}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ok, err := l.Reconcile(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("Reconcile = %v, %v", ok, err)
	}
	if err := l.ReconcileAll(ctx); err != nil {
		t.Errorf("ReconcileAll: %v", err)
	}

	// 66 credits of 1.25 and 34 debits of 0.5.
	bal, _ := l.CurrentBalance(ctx, a.ID)
	if !bal.Equal(d(65.5)) {
		t.Errorf("balance = %s, want 65.5", bal)
	}
}

// driftStore reports a stored balance that no longer matches the ledger.
type driftStore struct {
	*store.MemoryStore
	accountID string
}

func (s *driftStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := s.MemoryStore.GetAccount(ctx, id)
	if err == nil && id == s.accountID {
		a.Balance = a.Balance.Add(d(0.01))
	}
	return a, err
}

func (s *driftStore) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap, err := s.MemoryStore.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Accounts {
		if snap.Accounts[i].ID == s.accountID {
			snap.Accounts[i].Balance = snap.Accounts[i].Balance.Add(d(0.01))
		}
	}
	return snap, nil
}

func TestReconcile_SurfacesMismatch(t *testing.T) {
	mem := store.NewMemoryStore()
	ds := &driftStore{MemoryStore: mem}
	l := New(ds, lock.NewLocal(), Defaults{})
	ctx := context.Background()

	good := mustAccount(t, l, "Good", model.RoleOrigin)
	bad := mustAccount(t, l, "Bad", model.RoleHedge)
	deposit(t, l, good.ID, 10)
	deposit(t, l, bad.ID, 10)
	ds.accountID = bad.ID

	ok, err := l.Reconcile(ctx, bad.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Reconcile should report the drifted account")
	}
	if ok, _ := l.Reconcile(ctx, good.ID); !ok {
		t.Error("Reconcile should accept the healthy account")
	}

	err = l.ReconcileAll(ctx)
	var re *model.ReconciliationError
	if !errors.As(err, &re) {
		t.Fatalf("ReconcileAll error = %v, want ReconciliationError", err)
	}
	if re.AccountID != bad.ID || !re.Stored.Sub(re.Computed).Equal(d(0.01)) {
		t.Errorf("reconciliation error = %+v", re)
	}
	if !errors.Is(err, model.ErrReconciliationMismatch) {
		t.Error("joined error should match ErrReconciliationMismatch")
	}

	// Never repaired.
	a, _ := mem.GetAccount(ctx, bad.ID)
	if !a.Balance.Equal(d(10)) {
		t.Errorf("underlying balance changed to %s", a.Balance)
	}
}
