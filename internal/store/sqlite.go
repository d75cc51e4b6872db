package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atmx/hedge-engine/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. A single connection
// serializes every transaction, so the file is quiescent between them and
// can be copied by an external backup job.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range SQLiteSchema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(q sqlQuerier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// --- Accounts ---

const sqliteAccountCols = `id, name, owner, type, currency, commission, balance, bonus_balance, notes, created_at, updated_at`

func scanSQLiteAccount(r rowScanner) (*model.Account, error) {
	var id, name, owner, role, currency, commission, balance, bonus, notes, created, updated *string
	if err := r.Scan(&id, &name, &owner, &role, &currency, &commission, &balance, &bonus, &notes, &created, &updated); err != nil {
		return nil, err
	}
	d := decoder{table: "accounts", id: deref(id)}
	a := &model.Account{
		ID:           d.text("id", id),
		Name:         d.text("name", name),
		Owner:        d.optText(owner),
		Role:         model.AccountRole(d.text("type", role)),
		Currency:     d.text("currency", currency),
		Commission:   d.decimal("commission", commission),
		Balance:      d.decimal("balance", balance),
		BonusBalance: d.decimal("bonus_balance", bonus),
		Notes:        d.optText(notes),
		CreatedAt:    d.time("created_at", created),
		UpdatedAt:    d.time("updated_at", updated),
	}
	if d.err != nil {
		return nil, d.err
	}
	if !a.Role.Valid() {
		return nil, integrity("accounts", "type", a.ID, fmt.Errorf("unknown role %q", a.Role))
	}
	return a, nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+sqliteAccountCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Owner, string(a.Role), a.Currency,
		a.Commission.String(), a.Balance.String(), a.BonusBalance.String(),
		optString(a.Notes), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create account %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.getAccount(ctx, s.db, id)
}

func (s *SQLiteStore) getAccount(ctx context.Context, q sqlQuerier, id string) (*model.Account, error) {
	a, err := scanSQLiteAccount(q.QueryRowContext(ctx,
		`SELECT `+sqliteAccountCols+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get account %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.listAccounts(ctx, s.db)
}

func (s *SQLiteStore) listAccounts(ctx context.Context, q sqlQuerier) ([]model.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+sqliteAccountCols+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanSQLiteAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- Ledger ---

const sqliteTxCols = `id, account_id, ts, kind, amount, balance_after, ref_operation_id, ref_incentive_id, note`

func scanSQLiteTx(r rowScanner) (*model.Transaction, error) {
	var id, account, ts, kind, amount, after, refOp, refInc, note *string
	if err := r.Scan(&id, &account, &ts, &kind, &amount, &after, &refOp, &refInc, &note); err != nil {
		return nil, err
	}
	d := decoder{table: "transactions", id: deref(id)}
	tx := &model.Transaction{
		ID:             d.text("id", id),
		AccountID:      d.text("account_id", account),
		Timestamp:      d.time("ts", ts),
		Kind:           model.TxKind(d.text("kind", kind)),
		Amount:         d.decimal("amount", amount),
		BalanceAfter:   d.decimal("balance_after", after),
		RefOperationID: d.optText(refOp),
		RefIncentiveID: d.optText(refInc),
		Note:           d.optText(note),
	}
	if d.err != nil {
		return nil, d.err
	}
	if !tx.Kind.Valid() {
		return nil, integrity("transactions", "kind", tx.ID, fmt.Errorf("unknown kind %q", tx.Kind))
	}
	return tx, nil
}

func (s *SQLiteStore) AppendTransactions(ctx context.Context, postings []model.Posting) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, func(q sqlQuerier) error {
		var err error
		out, err = s.post(ctx, q, postings)
		return err
	})
	return out, err
}

// post books postings inside an open transaction.
func (s *SQLiteStore) post(ctx context.Context, q sqlQuerier, postings []model.Posting) ([]model.Transaction, error) {
	now := s.now()
	out := make([]model.Transaction, 0, len(postings))
	for _, p := range postings {
		if err := checkPosting(p); err != nil {
			return nil, err
		}
		a, err := s.getAccount(ctx, q, p.AccountID)
		if err != nil {
			return nil, err
		}
		if p.RefIncentiveID != "" {
			var one int
			err := q.QueryRowContext(ctx, `SELECT 1 FROM incentives WHERE id = ?`, p.RefIncentiveID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", model.ErrIncentiveNotFound, p.RefIncentiveID)
			}
			if err != nil {
				return nil, fmt.Errorf("sqlite: check incentive %s: %w", p.RefIncentiveID, err)
			}
		}

		tx := apply(a, p, now)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO transactions (`+sqliteTxCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, tx.AccountID, formatTime(tx.Timestamp), string(tx.Kind),
			tx.Amount.String(), tx.BalanceAfter.String(),
			optString(tx.RefOperationID), optString(tx.RefIncentiveID), optString(tx.Note),
		); err != nil {
			return nil, fmt.Errorf("sqlite: insert transaction on %s: %w", a.ID, err)
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE accounts SET balance = ?, bonus_balance = ?, updated_at = ? WHERE id = ?`,
			a.Balance.String(), a.BonusBalance.String(), formatTime(a.UpdatedAt), a.ID,
		); err != nil {
			return nil, fmt.Errorf("sqlite: update balance of %s: %w", a.ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]model.Transaction, error) {
	return s.listTransactions(ctx, s.db, f)
}

func (s *SQLiteStore) listTransactions(ctx context.Context, q sqlQuerier, f TransactionFilter) ([]model.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if f.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.OperationID != "" {
		conds = append(conds, "ref_operation_id = ?")
		args = append(args, f.OperationID)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := `SELECT ` + sqliteTxCols + ` FROM transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts, rowid"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanSQLiteTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// --- Operations ---

const sqliteOpCols = `id, ts, origin_account_id, hedge_account_id, event, mode, stake_source,
	stake_a, odds_a, hedge_stake_b, odds_b, exposure_b, commission_b,
	profit_a_wins, profit_b_wins, perdida_calificacion, beneficio_cnr, rendimiento_cnr,
	rating, status, settled_at, settlement_note, notes`

func scanSQLiteOperation(r rowScanner) (*model.Operation, error) {
	var (
		id, ts, origin, hedge, event, mode, source           *string
		stake, oddsA, hedgeStake, oddsB, exposure, commission *string
		profitA, profitB, loss, benefit, yield, rating        *string
		status, settledAt, settlementNote, notes              *string
	)
	if err := r.Scan(&id, &ts, &origin, &hedge, &event, &mode, &source,
		&stake, &oddsA, &hedgeStake, &oddsB, &exposure, &commission,
		&profitA, &profitB, &loss, &benefit, &yield,
		&rating, &status, &settledAt, &settlementNote, &notes); err != nil {
		return nil, err
	}

	d := decoder{table: "operations", id: deref(id)}
	op := &model.Operation{
		ID:              d.text("id", id),
		Timestamp:       d.time("ts", ts),
		OriginAccountID: d.text("origin_account_id", origin),
		HedgeAccountID:  d.text("hedge_account_id", hedge),
		Event:           d.text("event", event),
		Mode:            model.Mode(d.text("mode", mode)),
		StakeSource:     model.StakeSource(d.text("stake_source", source)),
		Stake:           d.decimal("stake_a", stake),
		OddsA:           d.decimal("odds_a", oddsA),
		HedgeStake:      d.decimal("hedge_stake_b", hedgeStake),
		OddsB:           d.decimal("odds_b", oddsB),
		Exposure:        d.decimal("exposure_b", exposure),
		Commission:      d.decimal("commission_b", commission),
		ProfitIfA:       d.decimal("profit_a_wins", profitA),
		ProfitIfB:       d.decimal("profit_b_wins", profitB),
		QualifyingLoss:  d.nullDecimal("perdida_calificacion", loss),
		CreditBenefit:   d.nullDecimal("beneficio_cnr", benefit),
		CreditYield:     d.nullDecimal("rendimiento_cnr", yield),
		Rating:          d.decimal("rating", rating),
		Status:          d.status("status", status),
		SettledAt:       d.optTime("settled_at", settledAt),
		SettlementNote:  d.optText(settlementNote),
		Notes:           d.optText(notes),
	}
	if d.err != nil {
		return nil, d.err
	}
	return op, checkOperation(op)
}

// checkOperation rejects rows whose enums are outside the model.
func checkOperation(op *model.Operation) error {
	if !op.Mode.Valid() {
		return integrity("operations", "mode", op.ID, fmt.Errorf("unknown mode %q", op.Mode))
	}
	if !op.StakeSource.Valid() {
		return integrity("operations", "stake_source", op.ID, fmt.Errorf("unknown source %q", op.StakeSource))
	}
	return nil
}

func operationArgs(op *model.Operation) []any {
	return []any{
		op.ID, formatTime(op.Timestamp), op.OriginAccountID, op.HedgeAccountID, op.Event,
		string(op.Mode), string(op.StakeSource),
		op.Stake.String(), op.OddsA.String(), op.HedgeStake.String(), op.OddsB.String(),
		op.Exposure.String(), op.Commission.String(),
		op.ProfitIfA.String(), op.ProfitIfB.String(),
		optDecimal(op.QualifyingLoss), optDecimal(op.CreditBenefit), optDecimal(op.CreditYield),
		op.Rating.String(), op.Status.String(), formatOptTime(op.SettledAt),
		optString(op.SettlementNote), optString(op.Notes),
	}
}

func (s *SQLiteStore) CreateOperation(ctx context.Context, op *model.Operation, locks []model.Posting) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, func(q sqlQuerier) error {
		for _, id := range []string{op.OriginAccountID, op.HedgeAccountID} {
			if _, err := s.getAccount(ctx, q, id); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO operations (`+sqliteOpCols+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			operationArgs(op)...,
		); err != nil {
			return fmt.Errorf("sqlite: insert operation %s: %w", op.ID, err)
		}
		var err error
		out, err = s.post(ctx, q, locks)
		return err
	})
	return out, err
}

func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	return s.getOperation(ctx, s.db, id)
}

func (s *SQLiteStore) getOperation(ctx context.Context, q sqlQuerier, id string) (*model.Operation, error) {
	op, err := scanSQLiteOperation(q.QueryRowContext(ctx,
		`SELECT `+sqliteOpCols+` FROM operations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrOperationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get operation %s: %w", id, err)
	}
	return op, nil
}

func (s *SQLiteStore) ListOperations(ctx context.Context, f OperationFilter) ([]model.Operation, error) {
	return s.listOperations(ctx, s.db, f)
}

func (s *SQLiteStore) listOperations(ctx context.Context, q sqlQuerier, f OperationFilter) ([]model.Operation, error) {
	var (
		conds []string
		args  []any
	)
	if !f.IncludeCancelled {
		conds = append(conds, "status <> ?")
		args = append(args, model.StatusCancelled.String())
	}
	if f.Status != model.StatusUnknown {
		conds = append(conds, "status = ?")
		args = append(args, f.Status.String())
	}
	if f.AccountID != "" {
		conds = append(conds, "(origin_account_id = ? OR hedge_account_id = ?)")
		args = append(args, f.AccountID, f.AccountID)
	}

	query := `SELECT ` + sqliteOpCols + ` FROM operations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, rowid DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list operations: %w", err)
	}
	defer rows.Close()

	var out []model.Operation
	for rows.Next() {
		op, err := scanSQLiteOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionOperation(ctx context.Context, t model.Transition) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, func(q sqlQuerier) error {
		op, err := s.getOperation(ctx, q, t.OperationID)
		if err != nil {
			return err
		}
		if op.Status != t.From {
			return fmt.Errorf("%w: operation %s is %s, expected %s", model.ErrWrongState, op.ID, op.Status, t.From)
		}
		if out, err = s.post(ctx, q, t.Postings); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx,
			`UPDATE operations SET status = ?, settled_at = ?, settlement_note = ?
			 WHERE id = ? AND status = ?`,
			t.To.String(), formatTime(t.At), optString(t.Note), t.OperationID, t.From.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: transition operation %s: %w", t.OperationID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: operation %s changed concurrently", model.ErrWrongState, t.OperationID)
		}
		return nil
	})
	return out, err
}

func (s *SQLiteStore) AmendOperation(ctx context.Context, op *model.Operation, postings []model.Posting) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, func(q sqlQuerier) error {
		cur, err := s.getOperation(ctx, q, op.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return fmt.Errorf("%w: operation %s is %s", model.ErrWrongState, op.ID, cur.Status)
		}
		if out, err = s.post(ctx, q, postings); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`UPDATE operations SET
				origin_account_id = ?, hedge_account_id = ?, event = ?, mode = ?, stake_source = ?,
				stake_a = ?, odds_a = ?, hedge_stake_b = ?, odds_b = ?, exposure_b = ?, commission_b = ?,
				profit_a_wins = ?, profit_b_wins = ?,
				perdida_calificacion = ?, beneficio_cnr = ?, rendimiento_cnr = ?,
				rating = ?, notes = ?
			 WHERE id = ? AND status = ?`,
			op.OriginAccountID, op.HedgeAccountID, op.Event, string(op.Mode), string(op.StakeSource),
			op.Stake.String(), op.OddsA.String(), op.HedgeStake.String(), op.OddsB.String(),
			op.Exposure.String(), op.Commission.String(),
			op.ProfitIfA.String(), op.ProfitIfB.String(),
			optDecimal(op.QualifyingLoss), optDecimal(op.CreditBenefit), optDecimal(op.CreditYield),
			op.Rating.String(), optString(op.Notes),
			op.ID, model.StatusPending.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: amend operation %s: %w", op.ID, err)
		}
		return nil
	})
	return out, err
}

// --- Incentives ---

const sqliteIncentiveCols = `id, account_id, title, type, req_stake, min_odds, expiry_date, status, notes`

func scanSQLiteIncentive(r rowScanner) (*model.Incentive, error) {
	var id, account, title, typ, reqStake, minOdds, expiry, status, notes *string
	if err := r.Scan(&id, &account, &title, &typ, &reqStake, &minOdds, &expiry, &status, &notes); err != nil {
		return nil, err
	}
	d := decoder{table: "incentives", id: deref(id)}
	in := &model.Incentive{
		ID:         d.text("id", id),
		AccountID:  d.optText(account),
		Title:      d.text("title", title),
		Type:       d.optText(typ),
		ReqStake:   d.nullDecimal("req_stake", reqStake),
		MinOdds:    d.nullDecimal("min_odds", minOdds),
		ExpiryDate: d.optTime("expiry_date", expiry),
		Status:     d.optText(status),
		Notes:      d.optText(notes),
	}
	if d.err != nil {
		return nil, d.err
	}
	return in, nil
}

func (s *SQLiteStore) CreateIncentive(ctx context.Context, in *model.Incentive) error {
	return s.inTx(ctx, func(q sqlQuerier) error {
		if in.AccountID != "" {
			if _, err := s.getAccount(ctx, q, in.AccountID); err != nil {
				return err
			}
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO incentives (`+sqliteIncentiveCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, optString(in.AccountID), in.Title, optString(in.Type),
			optDecimal(in.ReqStake), optDecimal(in.MinOdds), formatOptTime(in.ExpiryDate),
			optString(in.Status), optString(in.Notes),
		)
		if err != nil {
			return fmt.Errorf("sqlite: create incentive %s: %w", in.ID, err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetIncentive(ctx context.Context, id string) (*model.Incentive, error) {
	in, err := scanSQLiteIncentive(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteIncentiveCols+` FROM incentives WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrIncentiveNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get incentive %s: %w", id, err)
	}
	return in, nil
}

func (s *SQLiteStore) ListIncentives(ctx context.Context) ([]model.Incentive, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteIncentiveCols+` FROM incentives ORDER BY expiry_date IS NULL, expiry_date, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list incentives: %w", err)
	}
	defer rows.Close()

	var out []model.Incentive
	for rows.Next() {
		in, err := scanSQLiteIncentive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// --- Reporting ---

func (s *SQLiteStore) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	err := s.inTx(ctx, func(q sqlQuerier) error {
		var err error
		if snap.Accounts, err = s.listAccounts(ctx, q); err != nil {
			return err
		}
		if snap.Operations, err = s.listOperations(ctx, q, OperationFilter{IncludeCancelled: true}); err != nil {
			return err
		}
		snap.Transactions, err = s.listTransactions(ctx, q, TransactionFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*SQLiteStore)(nil)
