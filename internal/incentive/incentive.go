// Package incentive records bookmaker promotions and credits them to the
// ledger.
package incentive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/calculator"
	"github.com/atmx/hedge-engine/internal/ledger"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/store"
)

// StatusActive is the status of a new incentive.
const StatusActive = "ACTIVE"

// Service manages incentives.
type Service struct {
	store  store.Store
	ledger *ledger.Service
}

// NewService creates an incentive service.
func NewService(st store.Store, l *ledger.Service) *Service {
	return &Service{store: st, ledger: l}
}

// Create validates and stores in, assigning its id.
func (s *Service) Create(ctx context.Context, in model.Incentive) (*model.Incentive, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: incentive title is required", model.ErrInvalidArgument)
	}
	if in.MinOdds.Valid && !in.MinOdds.Decimal.GreaterThan(calculator.MinOdds) {
		return nil, fmt.Errorf("%w: min_odds must be greater than %s, got %s",
			model.ErrInvalidArgument, calculator.MinOdds, in.MinOdds.Decimal)
	}
	if in.ReqStake.Valid && !in.ReqStake.Decimal.IsPositive() {
		return nil, fmt.Errorf("%w: req_stake must be positive, got %s", model.ErrInvalidArgument, in.ReqStake.Decimal)
	}
	if in.AccountID != "" {
		if _, err := s.ledger.Account(ctx, in.AccountID); err != nil {
			return nil, err
		}
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if in.ExpiryDate != nil {
		t := in.ExpiryDate.UTC()
		in.ExpiryDate = &t
	}
	in.ID = uuid.Must(uuid.NewV7()).String()

	if err := s.store.CreateIncentive(ctx, &in); err != nil {
		return nil, fmt.Errorf("create incentive: %w", err)
	}
	slog.Info("incentive created", "incentive_id", in.ID, "title", in.Title, "account_id", in.AccountID)
	return &in, nil
}

// Get returns one incentive.
func (s *Service) Get(ctx context.Context, id string) (*model.Incentive, error) {
	return s.store.GetIncentive(ctx, id)
}

// List returns every incentive, soonest expiry first.
func (s *Service) List(ctx context.Context) ([]model.Incentive, error) {
	return s.store.ListIncentives(ctx)
}

// Grant books amount of promotional credit on the incentive's account as
// an incentive transaction referencing it.
func (s *Service) Grant(ctx context.Context, id string, amount decimal.Decimal, note string) (*model.Transaction, error) {
	in, err := s.store.GetIncentive(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.AccountID == "" {
		return nil, fmt.Errorf("%w: incentive %s is not tied to an account", model.ErrInvalidArgument, id)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: grant amount must be positive, got %s", model.ErrInvalidArgument, amount)
	}
	if note == "" {
		note = in.Title
	}
	return s.ledger.AppendTransaction(ctx, model.Posting{
		AccountID:      in.AccountID,
		Kind:           model.KindIncentive,
		Amount:         amount,
		Note:           note,
		RefIncentiveID: in.ID,
	})
}
