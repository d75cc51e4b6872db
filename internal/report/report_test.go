package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 12, 0, 0, 0, time.UTC)
}

// seed books 12.5 of profit around the 2025/2026 ISO week boundary and
// leaves one cash-funded operation pending.
func seed(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	for _, a := range []*model.Account{
		{ID: "a", Name: "Bookie", Role: model.RoleOrigin, Currency: "EUR", CreatedAt: day(2025, 12, 1)},
		{ID: "b", Name: "Exchange", Role: model.RoleHedge, Currency: "EUR", CreatedAt: day(2025, 12, 1)},
	} {
		if err := st.CreateAccount(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	postings := []model.Posting{
		{AccountID: "a", Kind: model.KindDeposit, Amount: d(100), Timestamp: day(2025, 12, 1)},
		{AccountID: "b", Kind: model.KindDeposit, Amount: d(50), Timestamp: day(2025, 12, 1)},
		{AccountID: "a", Kind: model.KindOpSettlement, Amount: d(10), Timestamp: day(2025, 12, 28)},
		{AccountID: "a", Kind: model.KindOpSettlement, Amount: d(-4), Timestamp: day(2025, 12, 29)},
		{AccountID: "a", Kind: model.KindOpSettlement, Amount: d(6.5), Timestamp: day(2026, 1, 2)},
	}
	if _, err := st.AppendTransactions(ctx, postings); err != nil {
		t.Fatal(err)
	}

	op := &model.Operation{
		ID:              "op-1",
		Timestamp:       day(2026, 1, 3),
		OriginAccountID: "a",
		HedgeAccountID:  "b",
		Event:           "Final",
		Mode:            model.ModeQualification,
		StakeSource:     model.SourceCash,
		Stake:           d(10),
		Exposure:        d(12),
		Status:          model.StatusPending,
	}
	if _, err := st.CreateOperation(ctx, op, []model.Posting{
		{AccountID: "a", Kind: model.KindOpLock, Amount: d(-10), RefOperationID: op.ID},
		{AccountID: "b", Kind: model.KindOpLock, Amount: d(-12), RefOperationID: op.ID},
	}); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestKPIs(t *testing.T) {
	s := NewService(seed(t))
	k, err := s.KPIs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !k.TotalProfit.Equal(d(12.5)) {
		t.Errorf("profit = %s, want 12.5", k.TotalProfit)
	}
	// 100 + 12.5 - 10 and 50 - 12
	if !k.TotalBalance.Equal(d(140.5)) {
		t.Errorf("balance = %s, want 140.5", k.TotalBalance)
	}
	if !k.ROI.Equal(d(0.089)) {
		t.Errorf("roi = %s, want 0.089", k.ROI)
	}
	if k.Operations != 1 || k.PendingOperations != 1 {
		t.Errorf("operations = %d pending = %d", k.Operations, k.PendingOperations)
	}
	if !k.LockedFunds.Equal(d(22)) {
		t.Errorf("locked = %s, want 22", k.LockedFunds)
	}
}

func TestKPIs_Empty(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	k, err := s.KPIs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !k.ROI.IsZero() || !k.TotalProfit.IsZero() || k.Operations != 0 {
		t.Errorf("kpis = %+v", k)
	}
}

func TestProfitOverTime(t *testing.T) {
	s := NewService(seed(t))
	tests := []struct {
		period string
		want   []Point
	}{
		{PeriodDay, []Point{
			{"2025-12-28", d(10)},
			{"2025-12-29", d(-4)},
			{"2026-01-02", d(6.5)},
		}},
		// 2025-12-29 is the Monday of ISO week 2026-W01.
		{PeriodWeek, []Point{
			{"2025-W52", d(10)},
			{"2026-W01", d(2.5)},
		}},
		{PeriodMonth, []Point{
			{"2025-12", d(6)},
			{"2026-01", d(6.5)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := s.ProfitOverTime(context.Background(), tt.period)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d buckets %+v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i].Period != tt.want[i].Period || !got[i].Profit.Equal(tt.want[i].Profit) {
					t.Errorf("bucket %d = %s %s, want %s %s", i,
						got[i].Period, got[i].Profit, tt.want[i].Period, tt.want[i].Profit)
				}
			}
		})
	}
}

func TestProfitOverTime_InvalidPeriod(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	if _, err := s.ProfitOverTime(context.Background(), "year"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}
