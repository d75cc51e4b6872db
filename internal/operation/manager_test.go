package operation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/ledger"
	"github.com/atmx/hedge-engine/internal/lock"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	ledger *ledger.Service
	mgr    *Manager
	events *recorder
	origin string
	hedge  string
}

func newFixture(t *testing.T, originFunds, hedgeFunds float64) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	locker := lock.NewLocal()
	l := ledger.New(st, locker, ledger.Defaults{Currency: "EUR", Commission: d(5)})
	rec := &recorder{}
	f := &fixture{ledger: l, mgr: NewManager(st, l, locker, rec), events: rec}

	origin, err := l.CreateAccount(ctx, ledger.AccountSpec{Name: "Bookie", Role: model.RoleOrigin})
	if err != nil {
		t.Fatal(err)
	}
	hedge, err := l.CreateAccount(ctx, ledger.AccountSpec{Name: "Exchange", Role: model.RoleHedge})
	if err != nil {
		t.Fatal(err)
	}
	f.origin, f.hedge = origin.ID, hedge.ID
	for id, amount := range map[string]float64{f.origin: originFunds, f.hedge: hedgeFunds} {
		if amount == 0 {
			continue
		}
		if _, err := l.AppendTransaction(ctx, model.Posting{AccountID: id, Kind: model.KindDeposit, Amount: d(amount)}); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

// qualifying is stake 25 at 2.0 hedged at 2.1 with 5% commission:
// hedge stake 24.40, exposure 26.83.
func (f *fixture) qualifying(source model.StakeSource) Request {
	return Request{
		OriginAccountID: f.origin,
		HedgeAccountID:  f.hedge,
		Event:           "Madrid v Sevilla",
		Mode:            model.ModeQualification,
		StakeSource:     source,
		Stake:           d(25),
		OddsA:           d(2.0),
		OddsB:           d(2.1),
	}
}

func (f *fixture) balances(t *testing.T) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	o, err := f.ledger.CurrentBalance(ctx, f.origin)
	if err != nil {
		t.Fatal(err)
	}
	h, err := f.ledger.CurrentBalance(ctx, f.hedge)
	if err != nil {
		t.Fatal(err)
	}
	return o, h
}

func (f *fixture) assertBalances(t *testing.T, origin, hedge float64) {
	t.Helper()
	o, h := f.balances(t)
	if !o.Equal(d(origin)) || !h.Equal(d(hedge)) {
		t.Errorf("balances = origin %s hedge %s, want %v and %v", o, h, origin, hedge)
	}
}

func (f *fixture) assertReconciled(t *testing.T) {
	t.Helper()
	if err := f.ledger.ReconcileAll(context.Background()); err != nil {
		t.Errorf("reconcile: %v", err)
	}
}

func (f *fixture) create(t *testing.T, req Request) *model.Operation {
	t.Helper()
	op, err := f.mgr.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return op
}

func TestCreate_LocksFunds(t *testing.T) {
	f := newFixture(t, 100, 100)
	op := f.create(t, f.qualifying(model.SourceCash))

	if op.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDIENTE", op.Status)
	}
	if !op.HedgeStake.Equal(d(24.40)) || !op.Exposure.Equal(d(26.83)) {
		t.Errorf("sizing = %s / %s, want 24.40 / 26.83", op.HedgeStake, op.Exposure)
	}
	if !op.Commission.Equal(d(5)) {
		t.Errorf("commission = %s, want hedge account default 5", op.Commission)
	}
	f.assertBalances(t, 75, 73.17)
	f.assertReconciled(t)

	stored, err := f.mgr.Get(context.Background(), op.ID)
	if err != nil || stored.Status != model.StatusPending {
		t.Fatalf("Get = %+v, %v", stored, err)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != EventCreated {
		t.Errorf("events = %v", got)
	}
}

func TestCreate_CreditFundedSkipsOrigin(t *testing.T) {
	f := newFixture(t, 0, 100)
	op := f.create(t, f.qualifying(model.SourceCredit))

	f.assertBalances(t, 0, 73.17)
	txs, _ := f.ledger.Transactions(context.Background(), store.TransactionFilter{OperationID: op.ID})
	if len(txs) != 1 || txs[0].AccountID != f.hedge {
		t.Errorf("lock rows = %+v, want only the hedge lock", txs)
	}
}

func TestCreate_InsufficientFunds(t *testing.T) {
	tests := []struct {
		name         string
		origin       float64
		hedge        float64
		wantAccounts int
	}{
		{"hedge short", 100, 10, 1},
		{"origin short", 20, 100, 1},
		{"both short", 5, 5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.origin, tt.hedge)
			_, err := f.mgr.Create(context.Background(), f.qualifying(model.SourceCash))

			var ife *model.InsufficientFundsError
			if !errors.As(err, &ife) {
				t.Fatalf("error = %v, want InsufficientFundsError", err)
			}
			if !errors.Is(err, model.ErrInsufficientFunds) {
				t.Error("error should match ErrInsufficientFunds")
			}
			if len(ife.Shortfalls) != tt.wantAccounts {
				t.Errorf("shortfalls = %+v", ife.Shortfalls)
			}
			for _, s := range ife.Shortfalls {
				if !s.Missing.Equal(s.Required.Sub(s.Available)) {
					t.Errorf("shortfall %+v: missing != required - available", s)
				}
			}

			f.assertBalances(t, tt.origin, tt.hedge)
			ops, _ := f.mgr.List(context.Background(), store.OperationFilter{IncludeCancelled: true})
			if len(ops) != 0 {
				t.Errorf("operations = %d, want 0", len(ops))
			}
		})
	}
}

func TestCreate_HedgeShortfallAmount(t *testing.T) {
	f := newFixture(t, 100, 10)
	_, err := f.mgr.Create(context.Background(), f.qualifying(model.SourceCash))
	var ife *model.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("error = %v", err)
	}
	s := ife.Shortfalls[0]
	if s.AccountID != f.hedge || !s.Missing.Equal(d(16.83)) {
		t.Errorf("shortfall = %+v, want hedge missing 16.83", s)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, 100, 100)
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"same account", func(r *Request) { r.HedgeAccountID = r.OriginAccountID }, model.ErrInvalidArgument},
		{"missing event", func(r *Request) { r.Event = "  " }, model.ErrInvalidArgument},
		{"unknown origin", func(r *Request) { r.OriginAccountID = "ghost" }, model.ErrAccountNotFound},
		{"low odds", func(r *Request) { r.OddsB = d(1.01) }, model.ErrInvalidArgument},
		{"zero stake", func(r *Request) { r.Stake = decimal.Zero }, model.ErrInvalidArgument},
		{"commission", func(r *Request) { r.Commission = decimal.NewNullDecimal(d(11)) }, model.ErrInvalidArgument},
		{"mode", func(r *Request) { r.Mode = "arb" }, model.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.qualifying(model.SourceCash)
			tt.mutate(&req)
			if _, err := f.mgr.Create(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	f.assertBalances(t, 100, 100)
}

func TestSettle_Outcomes(t *testing.T) {
	tests := []struct {
		name                   string
		source                 model.StakeSource
		outcome                string
		wantOrigin, wantHedge  float64
		wantOriginRows, wantTx int
	}{
		// origin: 75 + 25 release + 25 winnings; hedge: 73.17 + 26.83 - 26.83
		{"origin wins cash", model.SourceCash, "GANA_A", 125, 73.17, 2, 6},
		// hedge: 73.17 + 26.83 + 24.40·0.95
		{"hedge wins cash", model.SourceCash, "GANA_B", 75, 123.18, 2, 6},
		{"void cash", model.SourceCash, "ANULADA", 100, 100, 1, 4},
		{"origin wins credit", model.SourceCredit, "GANA_A", 125, 73.17, 1, 4},
		{"hedge wins credit", model.SourceCredit, "GANA_B", 100, 123.18, 1, 4},
		{"void credit", model.SourceCredit, "ANULADA", 100, 100, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100, 100)
			op := f.create(t, f.qualifying(tt.source))
			before, _ := f.balances(t)

			settled, err := f.mgr.Settle(context.Background(), op.ID, tt.outcome, "final whistle")
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if settled.Status.String() != tt.outcome || settled.SettledAt == nil || settled.SettlementNote != "final whistle" {
				t.Errorf("settled = %+v", settled)
			}
			f.assertBalances(t, tt.wantOrigin, tt.wantHedge)
			f.assertReconciled(t)

			if tt.outcome == "GANA_A" {
				after, _ := f.balances(t)
				if !after.GreaterThan(before) {
					t.Errorf("origin %s not above pre-settlement %s", after, before)
				}
			}

			txs, _ := f.ledger.Transactions(context.Background(), store.TransactionFilter{OperationID: op.ID})
			if len(txs) != tt.wantTx {
				t.Errorf("operation rows = %d, want %d", len(txs), tt.wantTx)
			}
			originRows := 0
			for _, tx := range txs {
				if tx.AccountID == f.origin {
					originRows++
				}
			}
			// Lock rows are included in the count for cash-funded stakes.
			if tt.source == model.SourceCash {
				originRows--
			}
			if originRows != tt.wantOriginRows {
				t.Errorf("origin settlement rows = %d, want %d", originRows, tt.wantOriginRows)
			}

			stored, _ := f.mgr.Get(context.Background(), op.ID)
			if stored.Status.String() != tt.outcome {
				t.Errorf("stored status = %s", stored.Status)
			}
		})
	}
}

func TestSettle_CreditHedgeWinZeroRelease(t *testing.T) {
	f := newFixture(t, 0, 100)
	op := f.create(t, f.qualifying(model.SourceCredit))
	if _, err := f.mgr.Settle(context.Background(), op.ID, "GANA_B", ""); err != nil {
		t.Fatal(err)
	}
	txs, _ := f.ledger.Transactions(context.Background(), store.TransactionFilter{AccountID: f.origin, OperationID: op.ID})
	if len(txs) != 1 || txs[0].Kind != model.KindOpRelease || !txs[0].Amount.IsZero() {
		t.Errorf("origin rows = %+v, want one zero release", txs)
	}
}

func TestSettle_ErrorOrder(t *testing.T) {
	f := newFixture(t, 100, 100)
	ctx := context.Background()
	pending := f.create(t, f.qualifying(model.SourceCash))
	done := f.create(t, f.qualifying(model.SourceCash))
	if _, err := f.mgr.Settle(ctx, done.ID, "ANULADA", ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      string
		outcome string
		want    error
	}{
		{"unknown id beats bad outcome", "ghost", "NOPE", model.ErrOperationNotFound},
		{"settled beats bad outcome", done.ID, "NOPE", model.ErrAlreadySettled},
		{"settled with valid outcome", done.ID, "GANA_A", model.ErrAlreadySettled},
		{"cancelled is not an outcome", pending.ID, "CANCELADA", model.ErrInvalidOutcome},
		{"pending is not an outcome", pending.ID, "PENDIENTE", model.ErrInvalidOutcome},
		{"lowercase", pending.ID, "gana_a", model.ErrInvalidOutcome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.mgr.Settle(ctx, tt.id, tt.outcome, ""); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	stored, _ := f.mgr.Get(ctx, pending.ID)
	if stored.Status != model.StatusPending {
		t.Errorf("rejected settle changed status to %s", stored.Status)
	}
	f.assertReconciled(t)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 100, 100)
	ctx := context.Background()
	op := f.create(t, f.qualifying(model.SourceCash))

	cancelled, err := f.mgr.Cancel(ctx, op.ID, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.SettlementNote != noteCancelled {
		t.Errorf("cancelled = %+v", cancelled)
	}
	f.assertBalances(t, 100, 100)
	f.assertReconciled(t)

	if _, err := f.mgr.Cancel(ctx, op.ID, ""); !errors.Is(err, model.ErrWrongState) {
		t.Errorf("second cancel error = %v, want ErrWrongState", err)
	}
	if _, err := f.mgr.Settle(ctx, op.ID, "GANA_A", ""); !errors.Is(err, model.ErrAlreadySettled) {
		t.Errorf("settle after cancel error = %v, want ErrAlreadySettled", err)
	}
	if _, err := f.mgr.Cancel(ctx, "ghost", ""); !errors.Is(err, model.ErrOperationNotFound) {
		t.Errorf("unknown id error = %v", err)
	}

	want := []string{EventCreated, EventCancelled}
	got := f.events.types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestList_ExcludesCancelled(t *testing.T) {
	f := newFixture(t, 500, 500)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, f.create(t, f.qualifying(model.SourceCash)).ID)
	}
	if _, err := f.mgr.Cancel(ctx, ids[1], "typo"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Settle(ctx, ids[2], "GANA_B", ""); err != nil {
		t.Fatal(err)
	}

	ops, err := f.mgr.List(ctx, store.OperationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Errorf("got %d operations, want 3", len(ops))
	}
	for _, op := range ops {
		if op.Status == model.StatusCancelled {
			t.Errorf("cancelled operation %s listed", op.ID)
		}
	}

	all, _ := f.mgr.List(ctx, store.OperationFilter{IncludeCancelled: true})
	if len(all) != 4 {
		t.Errorf("with cancelled: %d, want 4", len(all))
	}
	pending, _ := f.mgr.List(ctx, store.OperationFilter{Status: model.StatusPending})
	if len(pending) != 2 {
		t.Errorf("pending: %d, want 2", len(pending))
	}
}

func TestUpdate_ReleasesBeforeRelock(t *testing.T) {
	// Origin can only fund the larger stake with the released one.
	f := newFixture(t, 30, 100)
	ctx := context.Background()
	op := f.create(t, f.qualifying(model.SourceCash))
	f.assertBalances(t, 5, 73.17)

	updated, err := f.mgr.Update(ctx, op.ID, Request{Stake: d(30), Notes: "raised"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != op.ID || updated.Status != model.StatusPending {
		t.Errorf("updated = %+v", updated)
	}
	// 30·2/2.05 = 29.268…, exposure 29.268…·1.1 = 32.195…
	if !updated.HedgeStake.Equal(d(29.27)) || !updated.Exposure.Equal(d(32.20)) {
		t.Errorf("sizing = %s / %s, want 29.27 / 32.20", updated.HedgeStake, updated.Exposure)
	}
	if updated.Event != op.Event || updated.Notes != "raised" {
		t.Errorf("merge lost fields: %+v", updated)
	}
	f.assertBalances(t, 0, 67.80)
	f.assertReconciled(t)

	stored, _ := f.mgr.Get(ctx, op.ID)
	if !stored.Stake.Equal(d(30)) {
		t.Errorf("stored stake = %s", stored.Stake)
	}

	_, err = f.mgr.Update(ctx, op.ID, Request{Stake: d(31)})
	var ife *model.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("error = %v, want InsufficientFundsError", err)
	}
	if ife.Shortfalls[0].AccountID != f.origin || !ife.Shortfalls[0].Missing.Equal(d(1)) {
		t.Errorf("shortfall = %+v", ife.Shortfalls[0])
	}
	f.assertBalances(t, 0, 67.80)

	// Annulling after the edit gives back everything that was deposited.
	if _, err := f.mgr.Settle(ctx, op.ID, "ANULADA", ""); err != nil {
		t.Fatal(err)
	}
	f.assertBalances(t, 30, 100)
	f.assertReconciled(t)
}

func TestUpdate_SwitchToCredit(t *testing.T) {
	f := newFixture(t, 100, 100)
	ctx := context.Background()
	op := f.create(t, f.qualifying(model.SourceCash))

	if _, err := f.mgr.Update(ctx, op.ID, Request{StakeSource: model.SourceCredit}); err != nil {
		t.Fatal(err)
	}
	f.assertBalances(t, 100, 73.17)
	f.assertReconciled(t)
}

func TestUpdate_OnlyPending(t *testing.T) {
	f := newFixture(t, 100, 100)
	ctx := context.Background()
	op := f.create(t, f.qualifying(model.SourceCash))
	if _, err := f.mgr.Settle(ctx, op.ID, "GANA_A", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Update(ctx, op.ID, Request{Stake: d(10)}); !errors.Is(err, model.ErrWrongState) {
		t.Errorf("error = %v, want ErrWrongState", err)
	}
	if _, err := f.mgr.Update(ctx, "ghost", Request{Stake: d(10)}); !errors.Is(err, model.ErrOperationNotFound) {
		t.Errorf("error = %v, want ErrOperationNotFound", err)
	}
}

func TestSettle_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, 100, 100)
	op := f.create(t, f.qualifying(model.SourceCash))

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := "GANA_A"
			if i%2 == 1 {
				outcome = "GANA_B"
			}
			_, err := f.mgr.Settle(context.Background(), op.ID, outcome, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, model.ErrAlreadySettled):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if won != 1 || rejected != workers-1 {
		t.Errorf("won %d rejected %d, want 1 and %d", won, rejected, workers-1)
	}
	f.assertReconciled(t)
}

func TestConcurrentLifecycles_Reconcile(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			op, err := f.mgr.Create(ctx, f.qualifying(model.SourceCash))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			switch i % 4 {
			case 0:
				_, err = f.mgr.Settle(ctx, op.ID, "GANA_A", "")
			case 1:
				_, err = f.mgr.Settle(ctx, op.ID, "GANA_B", "")
			case 2:
				_, err = f.mgr.Cancel(ctx, op.ID, "")
			case 3:
				_, err = f.mgr.Update(ctx, op.ID, Request{Stake: d(10)})
			}
			if err != nil {
				t.Errorf("transition %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	f.assertReconciled(t)
	pending, _ := f.mgr.List(ctx, store.OperationFilter{Status: model.StatusPending})
	if len(pending) != 3 {
		t.Errorf("pending = %d, want 3", len(pending))
	}
}
