package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/atmx/hedge-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*model.Account
	accountOrder []string
	ledger       []model.Transaction
	operations   map[string]*model.Operation
	opOrder      []string
	incentives   map[string]*model.Incentive
	now          func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*model.Account),
		operations: make(map[string]*model.Operation),
		incentives: make(map[string]*model.Incentive),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return fmt.Errorf("%w: account %s already exists", model.ErrInvalidArgument, a.ID)
	}
	// Store a copy to avoid external mutation.
	cp := *a
	s.accounts[a.ID] = &cp
	s.accountOrder = append(s.accountOrder, a.ID)
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAccounts(), nil
}

func (s *MemoryStore) listAccounts() []model.Account {
	out := make([]model.Account, 0, len(s.accountOrder))
	for _, id := range s.accountOrder {
		out = append(out, *s.accounts[id])
	}
	return out
}

func (s *MemoryStore) AppendTransactions(_ context.Context, postings []model.Posting) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.post(postings)
}

// post validates every posting before applying any. Caller holds mu.
func (s *MemoryStore) post(postings []model.Posting) ([]model.Transaction, error) {
	for _, p := range postings {
		if err := checkPosting(p); err != nil {
			return nil, err
		}
		if _, ok := s.accounts[p.AccountID]; !ok {
			return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, p.AccountID)
		}
		if p.RefIncentiveID != "" {
			if _, ok := s.incentives[p.RefIncentiveID]; !ok {
				return nil, fmt.Errorf("%w: %s", model.ErrIncentiveNotFound, p.RefIncentiveID)
			}
		}
	}

	now := s.now()
	out := make([]model.Transaction, 0, len(postings))
	for _, p := range postings {
		tx := apply(s.accounts[p.AccountID], p, now)
		s.ledger = append(s.ledger, tx)
		out = append(out, tx)
	}
	return out, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, f TransactionFilter) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := range s.ledger {
		if f.match(&s.ledger[i]) {
			result = append(result, s.ledger[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) CreateOperation(_ context.Context, op *model.Operation, locks []model.Posting) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operations[op.ID]; exists {
		return nil, fmt.Errorf("%w: operation %s already exists", model.ErrInvalidArgument, op.ID)
	}
	for _, id := range []string{op.OriginAccountID, op.HedgeAccountID} {
		if _, ok := s.accounts[id]; !ok {
			return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, id)
		}
	}

	txs, err := s.post(locks)
	if err != nil {
		return nil, err
	}
	cp := *op
	s.operations[op.ID] = &cp
	s.opOrder = append(s.opOrder, op.ID)
	return txs, nil
}

func (s *MemoryStore) GetOperation(_ context.Context, id string) (*model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrOperationNotFound, id)
	}
	cp := *op
	return &cp, nil
}

func (s *MemoryStore) ListOperations(_ context.Context, f OperationFilter) ([]model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Operation
	for _, op := range s.listOperations() {
		if f.match(&op) {
			result = append(result, op)
		}
	}
	return result, nil
}

// listOperations returns every operation newest first. Caller holds mu.
func (s *MemoryStore) listOperations() []model.Operation {
	out := make([]model.Operation, 0, len(s.opOrder))
	for i := len(s.opOrder) - 1; i >= 0; i-- {
		out = append(out, *s.operations[s.opOrder[i]])
	}
	slices.SortStableFunc(out, func(a, b model.Operation) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

func (s *MemoryStore) TransitionOperation(_ context.Context, t model.Transition) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operations[t.OperationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrOperationNotFound, t.OperationID)
	}
	if op.Status != t.From {
		return nil, fmt.Errorf("%w: operation %s is %s, expected %s", model.ErrWrongState, op.ID, op.Status, t.From)
	}

	txs, err := s.post(t.Postings)
	if err != nil {
		return nil, err
	}
	at := t.At.UTC()
	op.Status = t.To
	op.SettledAt = &at
	op.SettlementNote = t.Note
	return txs, nil
}

func (s *MemoryStore) AmendOperation(_ context.Context, op *model.Operation, postings []model.Posting) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.operations[op.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrOperationNotFound, op.ID)
	}
	if cur.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: operation %s is %s", model.ErrWrongState, op.ID, cur.Status)
	}
	for _, id := range []string{op.OriginAccountID, op.HedgeAccountID} {
		if _, ok := s.accounts[id]; !ok {
			return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, id)
		}
	}

	txs, err := s.post(postings)
	if err != nil {
		return nil, err
	}
	cp := *op
	cp.Status = model.StatusPending
	s.operations[op.ID] = &cp
	return txs, nil
}

func (s *MemoryStore) CreateIncentive(_ context.Context, in *model.Incentive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.incentives[in.ID]; exists {
		return fmt.Errorf("%w: incentive %s already exists", model.ErrInvalidArgument, in.ID)
	}
	if in.AccountID != "" {
		if _, ok := s.accounts[in.AccountID]; !ok {
			return fmt.Errorf("%w: %s", model.ErrAccountNotFound, in.AccountID)
		}
	}
	cp := *in
	s.incentives[in.ID] = &cp
	return nil
}

func (s *MemoryStore) GetIncentive(_ context.Context, id string) (*model.Incentive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.incentives[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrIncentiveNotFound, id)
	}
	cp := *in
	return &cp, nil
}

func (s *MemoryStore) ListIncentives(_ context.Context) ([]model.Incentive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Incentive, 0, len(s.incentives))
	for _, in := range s.incentives {
		out = append(out, *in)
	}
	sortIncentives(out)
	return out, nil
}

func (s *MemoryStore) Snapshot(_ context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &model.Snapshot{
		Accounts:     s.listAccounts(),
		Operations:   s.listOperations(),
		Transactions: slices.Clone(s.ledger),
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

// sortIncentives orders by expiry date, undated last, then by id.
func sortIncentives(list []model.Incentive) {
	slices.SortFunc(list, func(a, b model.Incentive) int {
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return 1
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return -1
		case a.ExpiryDate != nil && b.ExpiryDate != nil:
			if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
				return c
			}
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

var _ Store = (*MemoryStore)(nil)
