package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// Input errors, raised before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidOutcome  = errors.New("invalid outcome")

	// Lookup errors.
	ErrAccountNotFound   = errors.New("account not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrIncentiveNotFound = errors.New("incentive not found")

	// State errors.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadySettled    = errors.New("operation already settled")
	ErrWrongState        = errors.New("operation in wrong state")
	ErrLockHeld          = errors.New("resource is locked by another writer")

	// Integrity errors. These are reported, never repaired.
	ErrReconciliationMismatch = errors.New("ledger reconciliation mismatch")
	ErrDataIntegrity          = errors.New("data integrity violation")
)

// Shortfall is the missing amount on one account.
type Shortfall struct {
	AccountID string          `json:"account_id"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Missing   decimal.Decimal `json:"missing"`
}

// InsufficientFundsError lists every account that cannot cover its lock.
type InsufficientFundsError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientFundsError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("account %s short by %s (required %s, available %s)",
			s.AccountID, s.Missing, s.Required, s.Available))
	}
	return "insufficient funds: " + strings.Join(parts, "; ")
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// ReconciliationError reports a stored balance that no longer equals the
// sum of the account's transactions.
type ReconciliationError struct {
	AccountID string
	Stored    decimal.Decimal
	Computed  decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("ledger reconciliation mismatch on account %s: stored %s, transactions sum %s",
		e.AccountID, e.Stored, e.Computed)
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliationMismatch }
