package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
)

// newID returns a time-ordered UUIDv7 string.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// checkPosting rejects postings no backend should accept.
func checkPosting(p model.Posting) error {
	if p.AccountID == "" {
		return fmt.Errorf("%w: posting without account", model.ErrInvalidArgument)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown transaction kind %q", model.ErrInvalidArgument, p.Kind)
	}
	return nil
}

// apply books p against a, mutating its balances, and returns the ledger
// row to persist. now stamps postings that carry no timestamp of their own.
func apply(a *model.Account, p model.Posting, now time.Time) model.Transaction {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = now
	}
	a.Balance = a.Balance.Add(p.Amount)
	if p.Kind == model.KindIncentive {
		a.BonusBalance = a.BonusBalance.Add(p.Amount)
	}
	a.UpdatedAt = now

	return model.Transaction{
		ID:             newID(),
		AccountID:      a.ID,
		Timestamp:      ts.UTC(),
		Kind:           p.Kind,
		Amount:         p.Amount,
		BalanceAfter:   a.Balance,
		RefOperationID: p.RefOperationID,
		RefIncentiveID: p.RefIncentiveID,
		Note:           p.Note,
	}
}

func (f TransactionFilter) match(tx *model.Transaction) bool {
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.OperationID != "" && tx.RefOperationID != f.OperationID {
		return false
	}
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	return true
}

func (f OperationFilter) match(op *model.Operation) bool {
	if !f.IncludeCancelled && op.Status == model.StatusCancelled {
		return false
	}
	if f.Status != model.StatusUnknown && op.Status != f.Status {
		return false
	}
	if f.AccountID != "" && op.OriginAccountID != f.AccountID && op.HedgeAccountID != f.AccountID {
		return false
	}
	return true
}

// --- Column decoding shared by the SQL backends ---

// integrity reports a column that cannot be mapped onto the entity.
func integrity(table, col, id string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s.%s of %s: %v", model.ErrDataIntegrity, table, col, id, err)
	}
	return fmt.Errorf("%w: %s.%s of %s is null", model.ErrDataIntegrity, table, col, id)
}

// decoder collects the first decoding failure of a row.
type decoder struct {
	table string
	id    string
	err   error
}

func (d *decoder) decimal(col string, s *string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	if s == nil {
		d.err = integrity(d.table, col, d.id, nil)
		return decimal.Zero
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		d.err = integrity(d.table, col, d.id, err)
	}
	return v
}

func (d *decoder) nullDecimal(col string, s *string) decimal.NullDecimal {
	if s == nil || d.err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.decimal(col, s))
}

func (d *decoder) text(col string, s *string) string {
	if d.err != nil {
		return ""
	}
	if s == nil {
		d.err = integrity(d.table, col, d.id, nil)
		return ""
	}
	return *s
}

func (d *decoder) optText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (d *decoder) status(col string, s *string) model.Status {
	raw := d.text(col, s)
	if d.err != nil {
		return model.StatusUnknown
	}
	st, err := model.ParseStatus(raw)
	if err != nil {
		d.err = integrity(d.table, col, d.id, err)
	}
	return st
}

// sqliteTime is a fixed-width UTC layout so TEXT columns sort by time.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func (d *decoder) time(col string, s *string) time.Time {
	raw := d.text(col, s)
	if d.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(sqliteTime, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, raw)
	}
	if err != nil {
		d.err = integrity(d.table, col, d.id, err)
	}
	return t.UTC()
}

func (d *decoder) optTime(col string, s *string) *time.Time {
	if s == nil || d.err != nil {
		return nil
	}
	t := d.time(col, s)
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func formatOptTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optDecimal(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.String()
	return &s
}
