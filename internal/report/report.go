// Package report derives dashboard figures from one consistent snapshot of
// the store. It never writes.
package report

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/precision"
	"github.com/atmx/hedge-engine/internal/store"
)

// Bucket periods accepted by ProfitOverTime.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// roiDigits is the precision of the reported ROI fraction.
const roiDigits = 4

// KPIs are the headline figures.
type KPIs struct {
	TotalProfit       decimal.Decimal `json:"total_profit"`
	ROI               decimal.Decimal `json:"roi"` // profit / total balance
	Operations        int             `json:"operations"`
	PendingOperations int             `json:"pending_operations"`
	TotalBalance      decimal.Decimal `json:"total_balance"`
	LockedFunds       decimal.Decimal `json:"locked_funds"`
}

// Point is the profit booked in one period.
type Point struct {
	Period string          `json:"period"`
	Profit decimal.Decimal `json:"profit"`
}

// Service computes reports.
type Service struct {
	store store.Store
}

// NewService creates a report service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// KPIs computes the headline figures. Profit is the sum of every
// op_settlement amount.
func (s *Service) KPIs(ctx context.Context) (*KPIs, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("kpis: %w", err)
	}

	k := &KPIs{
		TotalProfit:  decimal.Zero,
		ROI:          decimal.Zero,
		TotalBalance: decimal.Zero,
		LockedFunds:  decimal.Zero,
		Operations:   len(snap.Operations),
	}
	for _, tx := range snap.Transactions {
		if tx.Kind == model.KindOpSettlement {
			k.TotalProfit = k.TotalProfit.Add(tx.Amount)
		}
	}
	for _, a := range snap.Accounts {
		k.TotalBalance = k.TotalBalance.Add(a.Balance)
	}
	for _, op := range snap.Operations {
		if op.Status != model.StatusPending {
			continue
		}
		k.PendingOperations++
		k.LockedFunds = k.LockedFunds.Add(op.Exposure)
		if op.CashFunded() {
			k.LockedFunds = k.LockedFunds.Add(op.Stake)
		}
	}
	if !k.TotalBalance.IsZero() {
		k.ROI = precision.RoundHalfUp(precision.Div(k.TotalProfit, k.TotalBalance), roiDigits)
	}
	return k, nil
}

// ProfitOverTime buckets op_settlement amounts by day (2006-01-02), ISO
// week (2006-W01) or month (2006-01), in key order.
func (s *Service) ProfitOverTime(ctx context.Context, period string) ([]Point, error) {
	key, err := bucketKey(period)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("profit over time: %w", err)
	}

	buckets := make(map[string]decimal.Decimal)
	for _, tx := range snap.Transactions {
		if tx.Kind != model.KindOpSettlement {
			continue
		}
		k := key(tx.Timestamp.UTC())
		buckets[k] = buckets[k].Add(tx.Amount)
	}

	out := make([]Point, 0, len(buckets))
	for k, v := range buckets {
		out = append(out, Point{Period: k, Profit: v})
	}
	slices.SortFunc(out, func(a, b Point) int {
		switch {
		case a.Period < b.Period:
			return -1
		case a.Period > b.Period:
			return 1
		}
		return 0
	})
	return out, nil
}

func bucketKey(period string) (func(time.Time) string, error) {
	switch period {
	case PeriodDay:
		return func(t time.Time) string { return t.Format("2006-01-02") }, nil
	case PeriodWeek:
		return func(t time.Time) string {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%d-W%02d", y, w)
		}, nil
	case PeriodMonth:
		return func(t time.Time) string { return t.Format("2006-01") }, nil
	}
	return nil, fmt.Errorf("%w: period must be %s, %s or %s, got %q",
		model.ErrInvalidArgument, PeriodDay, PeriodWeek, PeriodMonth, period)
}
