// Package store defines the persistence interface for the hedge engine.
// Implementations include SQLite (local file, default), PostgreSQL,
// in-memory (for testing) and a Redis read-through cache wrapper.
//
// Every method that writes more than one row is a single atomic unit in
// every backend: a reader never sees a transaction row without its balance
// update, nor an operation status without the postings that go with it.
package store

import (
	"context"

	"github.com/atmx/hedge-engine/internal/model"
)

// TransactionFilter narrows ListTransactions. Zero fields match everything.
type TransactionFilter struct {
	AccountID   string
	OperationID string
	Kind        model.TxKind
}

// OperationFilter narrows ListOperations. Results are newest first.
type OperationFilter struct {
	Status           model.Status // StatusUnknown matches any
	AccountID        string       // origin or hedge side
	IncludeCancelled bool
}

// Store is the persistence interface.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account with zero balances.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount retrieves an account by id.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// ListAccounts returns all accounts ordered by creation time.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Append-only ledger ---

	// AppendTransactions applies the postings in order as one atomic unit.
	// Each posting reads the account balance, writes an immutable row with
	// the new balance snapshot and updates the account.
	AppendTransactions(ctx context.Context, postings []model.Posting) ([]model.Transaction, error)

	// ListTransactions returns matching rows oldest first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]model.Transaction, error)

	// --- Operations ---

	// CreateOperation persists a pending operation together with its lock
	// postings.
	CreateOperation(ctx context.Context, op *model.Operation, locks []model.Posting) ([]model.Transaction, error)

	// GetOperation retrieves an operation by id.
	GetOperation(ctx context.Context, id string) (*model.Operation, error)

	// ListOperations returns matching operations newest first.
	ListOperations(ctx context.Context, f OperationFilter) ([]model.Operation, error)

	// TransitionOperation moves an operation from t.From to t.To and applies
	// t.Postings. It fails with model.ErrWrongState when the stored status
	// is not t.From.
	TransitionOperation(ctx context.Context, t model.Transition) ([]model.Transaction, error)

	// AmendOperation replaces the frozen sizing of a pending operation and
	// applies the release and re-lock postings.
	AmendOperation(ctx context.Context, op *model.Operation, postings []model.Posting) ([]model.Transaction, error)

	// --- Incentives ---

	CreateIncentive(ctx context.Context, in *model.Incentive) error
	GetIncentive(ctx context.Context, id string) (*model.Incentive, error)
	ListIncentives(ctx context.Context) ([]model.Incentive, error)

	// --- Reporting ---

	// Snapshot reads accounts, operations and transactions consistently.
	Snapshot(ctx context.Context) (*model.Snapshot, error)

	Close() error
}
