package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/hedge-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Only immutable records are cached: settled or cancelled operations and
// incentives. Accounts and pending operations always come from the primary
// so sufficiency checks never see a stale balance.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) TransitionOperation(ctx context.Context, t model.Transition) ([]model.Transaction, error) {
	txs, err := s.Store.TransitionOperation(ctx, t)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, operationKey(t.OperationID))
	return txs, nil
}

func (s *CachedStore) AmendOperation(ctx context.Context, op *model.Operation, postings []model.Posting) ([]model.Transaction, error) {
	txs, err := s.Store.AmendOperation(ctx, op, postings)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, operationKey(op.ID))
	return txs, nil
}

func (s *CachedStore) CreateIncentive(ctx context.Context, in *model.Incentive) error {
	if err := s.Store.CreateIncentive(ctx, in); err != nil {
		return err
	}
	s.cache(ctx, incentiveKey(in.ID), in)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	var op model.Operation
	if s.lookup(ctx, operationKey(id), &op) {
		return &op, nil
	}

	// Cache miss: read from primary.
	got, err := s.Store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if got.Status.Terminal() {
		s.cache(ctx, operationKey(id), got)
	}
	return got, nil
}

func (s *CachedStore) GetIncentive(ctx context.Context, id string) (*model.Incentive, error) {
	var in model.Incentive
	if s.lookup(ctx, incentiveKey(id), &in) {
		return &in, nil
	}

	got, err := s.Store.GetIncentive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, incentiveKey(id), got)
	return got, nil
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func operationKey(id string) string { return fmt.Sprintf("hedge:operation:%s", id) }
func incentiveKey(id string) string { return fmt.Sprintf("hedge:incentive:%s", id) }

var _ Store = (*CachedStore)(nil)
