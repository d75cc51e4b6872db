// Package model defines the core domain types shared across the hedge engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountRole tells whether an account carries primary stakes or hedges.
type AccountRole string

const (
	RoleOrigin AccountRole = "origen"
	RoleHedge  AccountRole = "contraposicion"
)

// Valid reports whether r is a known role.
func (r AccountRole) Valid() bool {
	return r == RoleOrigin || r == RoleHedge
}

// TxKind classifies a ledger transaction.
type TxKind string

const (
	KindDeposit      TxKind = "deposit"
	KindWithdrawal   TxKind = "withdrawal"
	KindIncentive    TxKind = "incentive"
	KindAdjustment   TxKind = "adjustment"
	KindOpLock       TxKind = "op_lock"
	KindOpRelease    TxKind = "op_release"
	KindOpSettlement TxKind = "op_settlement"
	KindTransferOut  TxKind = "transfer_out"
	KindTransferIn   TxKind = "transfer_in"
)

// Valid reports whether k is one of the ledger transaction kinds.
func (k TxKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindIncentive, KindAdjustment,
		KindOpLock, KindOpRelease, KindOpSettlement,
		KindTransferOut, KindTransferIn:
		return true
	}
	return false
}

// Manual reports whether k may be posted directly by a user rather than
// by the operation lifecycle or a transfer.
func (k TxKind) Manual() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindIncentive, KindAdjustment:
		return true
	}
	return false
}

// Mode selects the hedging structure of an operation.
type Mode string

const (
	ModeQualification  Mode = "calificacion"
	ModeCreditNoReturn Mode = "credito_no_retorno"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeQualification || m == ModeCreditNoReturn
}

// StakeSource tells how the primary stake was funded.
type StakeSource string

const (
	SourceCash   StakeSource = "efectivo"
	SourceCredit StakeSource = "credito"
)

// Valid reports whether s is a known funding source.
func (s StakeSource) Valid() bool {
	return s == SourceCash || s == SourceCredit
}

// Account is a balance holder at a bookmaker or exchange. Balance is the
// sum of every Transaction recorded against the account and is only ever
// changed by appending to the ledger. Accounts are never deleted.
type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Owner        string          `json:"owner"`
	Role         AccountRole     `json:"type"`
	Currency     string          `json:"currency"`
	Commission   decimal.Decimal `json:"commission"` // percent, meaningful for hedge accounts
	Balance      decimal.Decimal `json:"balance"`
	BonusBalance decimal.Decimal `json:"bonus_balance"` // Σ incentive transactions
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger row. BalanceAfter is the account
// balance right after Amount was applied.
type Transaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	Timestamp      time.Time       `json:"ts"`
	Kind           TxKind          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"` // signed: +credit, -debit
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	RefOperationID string          `json:"ref_operation_id,omitempty"`
	RefIncentiveID string          `json:"ref_incentive_id,omitempty"`
	Note           string          `json:"note,omitempty"`
}

// Posting is a request to append one transaction. A zero Timestamp means
// "now" at the time the store commits it.
type Posting struct {
	AccountID      string
	Kind           TxKind
	Amount         decimal.Decimal
	Note           string
	RefOperationID string
	RefIncentiveID string
	Timestamp      time.Time
}

// Operation is one hedged pair of bets. HedgeStake, Exposure and the
// derived metrics are frozen at creation from the calculator output and
// settlement always uses the frozen values.
type Operation struct {
	ID              string              `json:"id"`
	Timestamp       time.Time           `json:"ts"`
	OriginAccountID string              `json:"origin_account_id"`
	HedgeAccountID  string              `json:"hedge_account_id"`
	Event           string              `json:"event"`
	Mode            Mode                `json:"mode"`
	StakeSource     StakeSource         `json:"stake_source"`
	Stake           decimal.Decimal     `json:"stake_a"`
	OddsA           decimal.Decimal     `json:"odds_a"`
	HedgeStake      decimal.Decimal     `json:"hedge_stake_b"`
	OddsB           decimal.Decimal     `json:"odds_b"`
	Exposure        decimal.Decimal     `json:"exposure_b"`
	Commission      decimal.Decimal     `json:"commission_b"`
	ProfitIfA       decimal.Decimal     `json:"profit_a_wins"`
	ProfitIfB       decimal.Decimal     `json:"profit_b_wins"`
	QualifyingLoss  decimal.NullDecimal `json:"perdida_calificacion"`
	CreditBenefit   decimal.NullDecimal `json:"beneficio_cnr"`
	CreditYield     decimal.NullDecimal `json:"rendimiento_cnr"`
	Rating          decimal.Decimal     `json:"rating"`
	Status          Status              `json:"status"`
	SettledAt       *time.Time          `json:"settled_at,omitempty"`
	SettlementNote  string              `json:"settlement_note,omitempty"`
	Notes           string              `json:"notes,omitempty"`
}

// CashFunded reports whether the primary stake is locked at the origin
// account. Credit-funded stakes never touch the origin balance.
func (o *Operation) CashFunded() bool {
	return o.StakeSource == SourceCash
}

// Transition is an atomic status change of an operation together with the
// ledger postings that go with it. Stores apply it only when the current
// status equals From.
type Transition struct {
	OperationID string
	From        Status
	To          Status
	At          time.Time
	Note        string
	Postings    []Posting
}

// Incentive is a bonus or promotion, optionally tied to an account.
type Incentive struct {
	ID         string              `json:"id"`
	AccountID  string              `json:"account_id,omitempty"`
	Title      string              `json:"title"`
	Type       string              `json:"type,omitempty"`
	ReqStake   decimal.NullDecimal `json:"req_stake"`
	MinOdds    decimal.NullDecimal `json:"min_odds"`
	ExpiryDate *time.Time          `json:"expiry_date,omitempty"`
	Status     string              `json:"status,omitempty"`
	Notes      string              `json:"notes,omitempty"`
}

// Snapshot is a consistent read of the whole store.
type Snapshot struct {
	Accounts     []Account
	Operations   []Operation
	Transactions []Transaction
}
