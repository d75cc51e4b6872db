package store

import _ "embed"

// postgresSchema is applied by PostgresStore.Migrate.
//
//go:embed schema/postgres.sql
var postgresSchema string

// SQLiteSchema returns the schema statements for the SQLite backend.
// Each string is a single statement (SQLite executes one at a time).
// Money and odds are TEXT holding exact decimal strings; timestamps are
// fixed-width UTC TEXT so they sort chronologically.
func SQLiteSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			owner         TEXT NOT NULL DEFAULT '',
			type          TEXT NOT NULL CHECK (type IN ('origen','contraposicion')),
			currency      TEXT NOT NULL,
			commission    TEXT NOT NULL DEFAULT '0',
			balance       TEXT NOT NULL DEFAULT '0',
			bonus_balance TEXT NOT NULL DEFAULT '0',
			notes         TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS incentives (
			id          TEXT PRIMARY KEY,
			account_id  TEXT REFERENCES accounts(id),
			title       TEXT NOT NULL,
			type        TEXT,
			req_stake   TEXT,
			min_odds    TEXT,
			expiry_date TEXT,
			status      TEXT,
			notes       TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS operations (
			id                   TEXT PRIMARY KEY,
			ts                   TEXT NOT NULL,
			origin_account_id    TEXT NOT NULL REFERENCES accounts(id),
			hedge_account_id     TEXT NOT NULL REFERENCES accounts(id),
			event                TEXT NOT NULL,
			mode                 TEXT NOT NULL CHECK (mode IN ('calificacion','credito_no_retorno')),
			stake_source         TEXT NOT NULL CHECK (stake_source IN ('efectivo','credito')),
			stake_a              TEXT NOT NULL,
			odds_a               TEXT NOT NULL,
			hedge_stake_b        TEXT NOT NULL,
			odds_b               TEXT NOT NULL,
			exposure_b           TEXT NOT NULL,
			commission_b         TEXT NOT NULL,
			profit_a_wins        TEXT NOT NULL,
			profit_b_wins        TEXT NOT NULL,
			perdida_calificacion TEXT,
			beneficio_cnr        TEXT,
			rendimiento_cnr      TEXT,
			rating               TEXT NOT NULL,
			status               TEXT NOT NULL CHECK (status IN ('PENDIENTE','GANA_A','GANA_B','ANULADA','CANCELADA')),
			settled_at           TEXT,
			settlement_note      TEXT,
			notes                TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_status_ts ON operations(status, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_origin_ts ON operations(origin_account_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_hedge_ts ON operations(hedge_account_id, ts)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id               TEXT PRIMARY KEY,
			account_id       TEXT NOT NULL REFERENCES accounts(id),
			ts               TEXT NOT NULL,
			kind             TEXT NOT NULL CHECK (kind IN ('deposit','withdrawal','incentive','adjustment','op_lock','op_release','op_settlement','transfer_out','transfer_in')),
			amount           TEXT NOT NULL,
			balance_after    TEXT NOT NULL,
			ref_operation_id TEXT REFERENCES operations(id),
			ref_incentive_id TEXT REFERENCES incentives(id),
			note             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_ts ON transactions(account_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_operation ON transactions(ref_operation_id)`,
	}
}
