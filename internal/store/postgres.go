package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/hedge-engine/internal/model"
)

// PostgresStore implements Store on PostgreSQL. Money and odds are NUMERIC
// for exact decimal precision and travel as text at the boundary. Every
// ledger mutation runs in one transaction that locks the touched account
// rows with SELECT ... FOR UPDATE, so several engine processes may share a
// database.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies the embedded idempotent schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// --- Accounts ---

const pgAccountCols = `id, name, owner, type, currency, commission::TEXT, balance::TEXT, bonus_balance::TEXT,
	notes, created_at, updated_at`

func scanPgAccount(r rowScanner) (*model.Account, error) {
	var (
		id, name, owner, role, currency, commission, balance, bonus, notes *string
		created, updated                                                   *time.Time
	)
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
		CreatedAt:    d.pgTime("created_at", created),
		UpdatedAt:    d.pgTime("updated_at", updated),
	}
	if d.err != nil {
		return nil, d.err
	}
	if !a.Role.Valid() {
		return nil, integrity("accounts", "type", a.ID, fmt.Errorf("unknown role %q", a.Role))
	}
	return a, nil
}

func (d *decoder) pgTime(col string, t *time.Time) time.Time {
	if d.err != nil {
		return time.Time{}
	}
	if t == nil {
		d.err = integrity(d.table, col, d.id, nil)
		return time.Time{}
	}
	return t.UTC()
}

func pgOptTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, owner, type, currency, commission, balance, bonus_balance, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`,
		a.ID, a.Name, a.Owner, string(a.Role), a.Currency,
		a.Commission.String(), a.Balance.String(), a.BonusBalance.String(),
		optString(a.Notes), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.getAccount(ctx, s.pool, id, false)
}

func (s *PostgresStore) getAccount(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*model.Account, error) {
	query := `SELECT ` + pgAccountCols + ` FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanPgAccount(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.listAccounts(ctx, s.pool)
}

func (s *PostgresStore) listAccounts(ctx context.Context, q pgQuerier) ([]model.Account, error) {
	rows, err := q.Query(ctx, `SELECT `+pgAccountCols+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanPgAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- Ledger ---

const pgTxCols = `id, account_id, ts, kind, amount::TEXT, balance_after::TEXT, ref_operation_id, ref_incentive_id, note`

func scanPgTx(r rowScanner) (*model.Transaction, error) {
	var (
		id, account, kind, amount, after, refOp, refInc, note *string
		ts                                                    *time.Time
	)
	if err := r.Scan(&id, &account, &ts, &kind, &amount, &after, &refOp, &refInc, &note); err != nil {
		return nil, err
	}
	d := decoder{table: "transactions", id: deref(id)}
	tx := &model.Transaction{
		ID:             d.text("id", id),
		AccountID:      d.text("account_id", account),
		Timestamp:      d.pgTime("ts", ts),
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

func (s *PostgresStore) AppendTransactions(ctx context.Context, postings []model.Posting) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		out, err = s.post(ctx, tx, postings)
		return err
	})
	return out, err
}

// post books postings inside tx, locking each account row first.
func (s *PostgresStore) post(ctx context.Context, tx pgx.Tx, postings []model.Posting) ([]model.Transaction, error) {
	now := s.now()
	out := make([]model.Transaction, 0, len(postings))
	for _, p := range postings {
		if err := checkPosting(p); err != nil {
			return nil, err
		}
		a, err := s.getAccount(ctx, tx, p.AccountID, true)
		if err != nil {
			return nil, err
		}
		if p.RefIncentiveID != "" {
			var one int
			err := tx.QueryRow(ctx, `SELECT 1 FROM incentives WHERE id = $1`, p.RefIncentiveID).Scan(&one)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", model.ErrIncentiveNotFound, p.RefIncentiveID)
			}
			if err != nil {
				return nil, fmt.Errorf("postgres: check incentive %s: %w", p.RefIncentiveID, err)
			}
		}

		row := apply(a, p, now)
		if _, err := tx.Exec(ctx,
			`INSERT INTO transactions (id, account_id, ts, kind, amount, balance_after, ref_operation_id, ref_incentive_id, note)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
			row.ID, row.AccountID, row.Timestamp, string(row.Kind),
			row.Amount.String(), row.BalanceAfter.String(),
			optString(row.RefOperationID), optString(row.RefIncentiveID), optString(row.Note),
		); err != nil {
			return nil, fmt.Errorf("postgres: insert transaction on %s: %w", a.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = $2::NUMERIC, bonus_balance = $3::NUMERIC, updated_at = $4 WHERE id = $1`,
			a.ID, a.Balance.String(), a.BonusBalance.String(), a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: update balance of %s: %w", a.ID, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]model.Transaction, error) {
	return s.listTransactions(ctx, s.pool, f)
}

func (s *PostgresStore) listTransactions(ctx context.Context, q pgQuerier, f TransactionFilter) ([]model.Transaction, error) {
	var w where
	if f.AccountID != "" {
		w.add("account_id = %s", f.AccountID)
	}
	if f.OperationID != "" {
		w.add("ref_operation_id = %s", f.OperationID)
	}
	if f.Kind != "" {
		w.add("kind = %s", string(f.Kind))
	}

	rows, err := q.Query(ctx, `SELECT `+pgTxCols+` FROM transactions`+w.String()+` ORDER BY ts, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanPgTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// where builds a conjunction with numbered placeholders.
type where struct {
	conds []string
	args  []any
}

// add appends cond, whose %s verbs are replaced by the next placeholders.
func (w *where) add(cond string, args ...any) {
	ph := make([]any, len(args))
	for i := range args {
		ph[i] = fmt.Sprintf("$%d", len(w.args)+i+1)
	}
	w.conds = append(w.conds, fmt.Sprintf(cond, ph...))
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// --- Operations ---

const pgOpCols = `id, ts, origin_account_id, hedge_account_id, event, mode, stake_source,
	stake_a::TEXT, odds_a::TEXT, hedge_stake_b::TEXT, odds_b::TEXT, exposure_b::TEXT, commission_b::TEXT,
	profit_a_wins::TEXT, profit_b_wins::TEXT,
	perdida_calificacion::TEXT, beneficio_cnr::TEXT, rendimiento_cnr::TEXT,
	rating::TEXT, status, settled_at, settlement_note, notes`

func scanPgOperation(r rowScanner) (*model.Operation, error) {
	var (
		id, origin, hedge, event, mode, source                *string
		stake, oddsA, hedgeStake, oddsB, exposure, commission *string
		profitA, profitB, loss, benefit, yield, rating        *string
		status, settlementNote, notes                         *string
		ts, settledAt                                         *time.Time
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
		Timestamp:       d.pgTime("ts", ts),
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
		SettledAt:       pgOptTime(settledAt),
		SettlementNote:  d.optText(settlementNote),
		Notes:           d.optText(notes),
	}
	if d.err != nil {
		return nil, d.err
	}
	return op, checkOperation(op)
}

func (s *PostgresStore) CreateOperation(ctx context.Context, op *model.Operation, locks []model.Posting) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, id := range []string{op.OriginAccountID, op.HedgeAccountID} {
			if _, err := s.getAccount(ctx, tx, id, false); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO operations (id, ts, origin_account_id, hedge_account_id, event, mode, stake_source,
				stake_a, odds_a, hedge_stake_b, odds_b, exposure_b, commission_b,
				profit_a_wins, profit_b_wins, perdida_calificacion, beneficio_cnr, rendimiento_cnr,
				rating, status, settled_at, settlement_note, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7,
				$8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC,
				$14::NUMERIC, $15::NUMERIC, $16::NUMERIC, $17::NUMERIC, $18::NUMERIC,
				$19::NUMERIC, $20, $21, $22, $23)`,
			op.ID, op.Timestamp, op.OriginAccountID, op.HedgeAccountID, op.Event,
			string(op.Mode), string(op.StakeSource),
			op.Stake.String(), op.OddsA.String(), op.HedgeStake.String(), op.OddsB.String(),
			op.Exposure.String(), op.Commission.String(),
			op.ProfitIfA.String(), op.ProfitIfB.String(),
			optDecimal(op.QualifyingLoss), optDecimal(op.CreditBenefit), optDecimal(op.CreditYield),
			op.Rating.String(), op.Status.String(), op.SettledAt,
			optString(op.SettlementNote), optString(op.Notes),
		); err != nil {
			return fmt.Errorf("postgres: insert operation %s: %w", op.ID, err)
		}
		var err error
		out, err = s.post(ctx, tx, locks)
		return err
	})
	return out, err
}

func (s *PostgresStore) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	return s.getOperation(ctx, s.pool, id, false)
}

func (s *PostgresStore) getOperation(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*model.Operation, error) {
	query := `SELECT ` + pgOpCols + ` FROM operations WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	op, err := scanPgOperation(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrOperationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get operation %s: %w", id, err)
	}
	return op, nil
}

func (s *PostgresStore) ListOperations(ctx context.Context, f OperationFilter) ([]model.Operation, error) {
	return s.listOperations(ctx, s.pool, f)
}

func (s *PostgresStore) listOperations(ctx context.Context, q pgQuerier, f OperationFilter) ([]model.Operation, error) {
	var w where
	if !f.IncludeCancelled {
		w.add("status <> %s", model.StatusCancelled.String())
	}
	if f.Status != model.StatusUnknown {
		w.add("status = %s", f.Status.String())
	}
	if f.AccountID != "" {
		w.add("(origin_account_id = %s OR hedge_account_id = %s)", f.AccountID, f.AccountID)
	}

	rows, err := q.Query(ctx, `SELECT `+pgOpCols+` FROM operations`+w.String()+` ORDER BY ts DESC, id DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list operations: %w", err)
	}
	defer rows.Close()

	var out []model.Operation
	for rows.Next() {
		op, err := scanPgOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TransitionOperation(ctx context.Context, t model.Transition) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		op, err := s.getOperation(ctx, tx, t.OperationID, true)
		if err != nil {
			return err
		}
		if op.Status != t.From {
			return fmt.Errorf("%w: operation %s is %s, expected %s", model.ErrWrongState, op.ID, op.Status, t.From)
		}
		if out, err = s.post(ctx, tx, t.Postings); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE operations SET status = $2, settled_at = $3, settlement_note = $4 WHERE id = $1`,
			t.OperationID, t.To.String(), t.At.UTC(), optString(t.Note),
		); err != nil {
			return fmt.Errorf("postgres: transition operation %s: %w", t.OperationID, err)
		}
		return nil
	})
	return out, err
}

func (s *PostgresStore) AmendOperation(ctx context.Context, op *model.Operation, postings []model.Posting) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		cur, err := s.getOperation(ctx, tx, op.ID, true)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return fmt.Errorf("%w: operation %s is %s", model.ErrWrongState, op.ID, cur.Status)
		}
		if out, err = s.post(ctx, tx, postings); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE operations SET
				origin_account_id = $2, hedge_account_id = $3, event = $4, mode = $5, stake_source = $6,
				stake_a = $7::NUMERIC, odds_a = $8::NUMERIC, hedge_stake_b = $9::NUMERIC,
				odds_b = $10::NUMERIC, exposure_b = $11::NUMERIC, commission_b = $12::NUMERIC,
				profit_a_wins = $13::NUMERIC, profit_b_wins = $14::NUMERIC,
				perdida_calificacion = $15::NUMERIC, beneficio_cnr = $16::NUMERIC, rendimiento_cnr = $17::NUMERIC,
				rating = $18::NUMERIC, notes = $19
			 WHERE id = $1`,
			op.ID, op.OriginAccountID, op.HedgeAccountID, op.Event, string(op.Mode), string(op.StakeSource),
			op.Stake.String(), op.OddsA.String(), op.HedgeStake.String(),
			op.OddsB.String(), op.Exposure.String(), op.Commission.String(),
			op.ProfitIfA.String(), op.ProfitIfB.String(),
			optDecimal(op.QualifyingLoss), optDecimal(op.CreditBenefit), optDecimal(op.CreditYield),
			op.Rating.String(), optString(op.Notes),
		); err != nil {
			return fmt.Errorf("postgres: amend operation %s: %w", op.ID, err)
		}
		return nil
	})
	return out, err
}

// --- Incentives ---

const pgIncentiveCols = `id, account_id, title, type, req_stake::TEXT, min_odds::TEXT, expiry_date, status, notes`

func scanPgIncentive(r rowScanner) (*model.Incentive, error) {
	var (
		id, account, title, typ, reqStake, minOdds, status, notes *string
		expiry                                                    *time.Time
	)
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
		ExpiryDate: pgOptTime(expiry),
		Status:     d.optText(status),
		Notes:      d.optText(notes),
	}
	if d.err != nil {
		return nil, d.err
	}
	return in, nil
}

func (s *PostgresStore) CreateIncentive(ctx context.Context, in *model.Incentive) error {
	return s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if in.AccountID != "" {
			if _, err := s.getAccount(ctx, tx, in.AccountID, false); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO incentives (id, account_id, title, type, req_stake, min_odds, expiry_date, status, notes)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
			in.ID, optString(in.AccountID), in.Title, optString(in.Type),
			optDecimal(in.ReqStake), optDecimal(in.MinOdds), in.ExpiryDate,
			optString(in.Status), optString(in.Notes),
		); err != nil {
			return fmt.Errorf("postgres: create incentive %s: %w", in.ID, err)
		}
		return nil
	})
}

func (s *PostgresStore) GetIncentive(ctx context.Context, id string) (*model.Incentive, error) {
	in, err := scanPgIncentive(s.pool.QueryRow(ctx,
		`SELECT `+pgIncentiveCols+` FROM incentives WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrIncentiveNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get incentive %s: %w", id, err)
	}
	return in, nil
}

func (s *PostgresStore) ListIncentives(ctx context.Context) ([]model.Incentive, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgIncentiveCols+` FROM incentives ORDER BY expiry_date ASC NULLS LAST, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list incentives: %w", err)
	}
	defer rows.Close()

	var out []model.Incentive
	for rows.Next() {
		in, err := scanPgIncentive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// --- Reporting ---

func (s *PostgresStore) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := s.inTx(ctx, opts, func(tx pgx.Tx) error {
		var err error
		if snap.Accounts, err = s.listAccounts(ctx, tx); err != nil {
			return err
		}
		if snap.Operations, err = s.listOperations(ctx, tx, OperationFilter{IncludeCancelled: true}); err != nil {
			return err
		}
		snap.Transactions, err = s.listTransactions(ctx, tx, TransactionFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

var _ Store = (*PostgresStore)(nil)
