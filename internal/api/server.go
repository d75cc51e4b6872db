// Package api exposes the hedge engine over HTTP JSON and streams
// operation events over a WebSocket.
//
// All monetary values use shopspring/decimal and are encoded as JSON
// strings, never float64.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/app"
	"github.com/atmx/hedge-engine/internal/calculator"
	"github.com/atmx/hedge-engine/internal/incentive"
	"github.com/atmx/hedge-engine/internal/ledger"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/operation"
	"github.com/atmx/hedge-engine/internal/report"
	"github.com/atmx/hedge-engine/internal/store"
	"github.com/atmx/hedge-engine/internal/ticks"
)

// Server holds the HTTP handlers.
type Server struct {
	ledger     *ledger.Service
	operations *operation.Manager
	incentives *incentive.Service
	reports    *report.Service
	hub        *WSHub // optional
}

// NewServer creates the handlers over a wired App. Pass nil for hub if the
// WebSocket feed is not needed.
func NewServer(a *app.App, hub *WSHub) *Server {
	return &Server{
		ledger:     a.Ledger,
		operations: a.Operations,
		incentives: a.Incentives,
		reports:    a.Reports,
		hub:        hub,
	}
}

// Routes registers every endpoint on r. Mount it under /api/v1.
func (s *Server) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/accounts", s.ListAccounts)
	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts/{accountID}", s.GetAccount)
	r.Get("/accounts/{accountID}/transactions", s.ListTransactions)
	r.Post("/accounts/{accountID}/transactions", s.AppendTransaction)
	r.Get("/accounts/{accountID}/topup", s.RequiredTopUp)
	r.Get("/accounts/{accountID}/reconcile", s.ReconcileAccount)
	r.Get("/reconcile", s.ReconcileAll)
	r.Post("/transfers", s.Transfer)

	r.Post("/calculator", s.Calculate)
	r.Get("/odds/snap", s.SnapOdds)

	r.Get("/operations", s.ListOperations)
	r.Post("/operations", s.CreateOperation)
	r.Get("/operations/{operationID}", s.GetOperation)
	r.Put("/operations/{operationID}", s.UpdateOperation)
	r.Post("/operations/{operationID}/settle", s.SettleOperation)
	r.Post("/operations/{operationID}/cancel", s.CancelOperation)

	r.Get("/incentives", s.ListIncentives)
	r.Post("/incentives", s.CreateIncentive)
	r.Get("/incentives/{incentiveID}", s.GetIncentive)
	r.Post("/incentives/{incentiveID}/grant", s.GrantIncentive)

	r.Get("/reports/kpis", s.KPIs)
	r.Get("/reports/profit", s.ProfitOverTime)
}

// --- Request types ---

// PostingRequest is the JSON body for POST /accounts/{id}/transactions.
type PostingRequest struct {
	Kind        model.TxKind    `json:"kind"`
	Amount      decimal.Decimal `json:"amount"` // signed: +credit, -debit
	Note        string          `json:"note"`
	IncentiveID string          `json:"incentive_id"`
}

// SettleRequest is the JSON body for POST /operations/{id}/settle.
type SettleRequest struct {
	Outcome string `json:"outcome"` // GANA_A, GANA_B or ANULADA
	Note    string `json:"note"`
}

// NoteRequest is the optional JSON body for POST /operations/{id}/cancel.
type NoteRequest struct {
	Note string `json:"note"`
}

// GrantRequest is the JSON body for POST /incentives/{id}/grant.
type GrantRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// decode reads a JSON body into v. An empty body is accepted when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	badRequest(w, "invalid request body")
	return false
}

func queryDecimal(r *http.Request, key string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return decimal.Zero, errors.New(key + " is required")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New(key + " must be a decimal number")
	}
	return v, nil
}

// --- Accounts and ledger ---

// ListAccounts handles GET /api/v1/accounts
func (s *Server) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateAccount handles POST /api/v1/accounts
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var spec ledger.AccountSpec
	if !decode(w, r, &spec, false) {
		return
	}
	a, err := s.ledger.CreateAccount(r.Context(), spec)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAccount handles GET /api/v1/accounts/{accountID}
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	a, err := s.ledger.Account(r.Context(), id)
	if err != nil {
		writeError(w, err, ref{accountID: id})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListTransactions handles GET /api/v1/accounts/{accountID}/transactions
// with optional ?kind= and ?operation_id= filters.
func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	ctx := r.Context()
	if _, err := s.ledger.Account(ctx, id); err != nil {
		writeError(w, err, ref{accountID: id})
		return
	}
	q := r.URL.Query()
	txs, err := s.ledger.Transactions(ctx, store.TransactionFilter{
		AccountID:   id,
		OperationID: q.Get("operation_id"),
		Kind:        model.TxKind(q.Get("kind")),
	})
	if err != nil {
		writeError(w, err, ref{accountID: id})
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// AppendTransaction handles POST /api/v1/accounts/{accountID}/transactions.
// Only deposits, withdrawals, incentives and adjustments may be posted by
// hand; lock, release, settlement and transfer rows come from their flows.
func (s *Server) AppendTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	var req PostingRequest
	if !decode(w, r, &req, false) {
		return
	}
	if !req.Kind.Manual() {
		badRequest(w, "kind must be deposit, withdrawal, incentive or adjustment")
		return
	}
	tx, err := s.ledger.AppendTransaction(r.Context(), model.Posting{
		AccountID:      id,
		Kind:           req.Kind,
		Amount:         req.Amount,
		Note:           req.Note,
		RefIncentiveID: req.IncentiveID,
	})
	if err != nil {
		writeError(w, err, ref{accountID: id})
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// RequiredTopUp handles GET /api/v1/accounts/{accountID}/topup?amount=
func (s *Server) RequiredTopUp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	amount, err := queryDecimal(r, "amount")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	topUp, err := s.ledger.RequiredTopUp(r.Context(), id, amount)
	if err != nil {
		writeError(w, err, ref{accountID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"required":   amount,
		"top_up":     topUp,
	})
}

// ReconcileAccount handles GET /api/v1/accounts/{accountID}/reconcile
func (s *Server) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	ok, err := s.ledger.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, err, ref{accountID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_id": id, "ok": ok})
}

// mismatch is one failing account in a reconciliation report.
type mismatch struct {
	AccountID string          `json:"account_id"`
	Stored    decimal.Decimal `json:"stored"`
	Computed  decimal.Decimal `json:"computed"`
}

// ReconcileAll handles GET /api/v1/reconcile. Mismatches are a result, not
// a failure: the response is 200 with ok=false and the failing accounts.
func (s *Server) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.ReconcileAll(r.Context())
	mismatches := []mismatch{}
	if err != nil {
		joined, _ := err.(interface{ Unwrap() []error })
		if joined == nil {
			writeError(w, err, ref{})
			return
		}
		for _, e := range joined.Unwrap() {
			var re *model.ReconciliationError
			if !errors.As(e, &re) {
				writeError(w, err, ref{})
				return
			}
			mismatches = append(mismatches, mismatch{AccountID: re.AccountID, Stored: re.Stored, Computed: re.Computed})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": len(mismatches) == 0, "mismatches": mismatches})
}

// Transfer handles POST /api/v1/transfers
func (s *Server) Transfer(w http.ResponseWriter, r *http.Request) {
	var spec ledger.TransferSpec
	if !decode(w, r, &spec, false) {
		return
	}
	txs, err := s.ledger.Transfer(r.Context(), spec)
	if err != nil {
		writeError(w, err, ref{accountID: spec.From})
		return
	}
	writeJSON(w, http.StatusCreated, txs)
}

// --- Calculator ---

// Calculate handles POST /api/v1/calculator. It sizes a hedge without
// touching the ledger.
func (s *Server) Calculate(w http.ResponseWriter, r *http.Request) {
	var in calculator.Input
	if !decode(w, r, &in, false) {
		return
	}
	res, err := calculator.Compute(in)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SnapOdds handles GET /api/v1/odds/snap?odds=
func (s *Server) SnapOdds(w http.ResponseWriter, r *http.Request) {
	odds, err := queryDecimal(r, "odds")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	snapped, err := ticks.ValidateAndSnap(odds)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"odds": odds, "snapped": snapped})
}

// --- Operations ---

// ListOperations handles GET /api/v1/operations with optional ?status=,
// ?account_id= and ?include_cancelled= (default true).
func (s *Server) ListOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OperationFilter{AccountID: q.Get("account_id"), IncludeCancelled: true}
	if raw := q.Get("include_cancelled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "include_cancelled must be true or false")
			return
		}
		f.IncludeCancelled = v
	}
	if raw := q.Get("status"); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, err, ref{})
			return
		}
		f.Status = st
	}

	ops, err := s.operations.List(r.Context(), f)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	if ops == nil {
		ops = []model.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// CreateOperation handles POST /api/v1/operations
func (s *Server) CreateOperation(w http.ResponseWriter, r *http.Request) {
	var req operation.Request
	if !decode(w, r, &req, false) {
		return
	}
	op, err := s.operations.Create(r.Context(), req)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

// GetOperation handles GET /api/v1/operations/{operationID}
func (s *Server) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	op, err := s.operations.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, ref{operationID: id})
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// UpdateOperation handles PUT /api/v1/operations/{operationID}. Fields
// left out of the body keep their current value.
func (s *Server) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	var req operation.Request
	if !decode(w, r, &req, false) {
		return
	}
	op, err := s.operations.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, err, ref{operationID: id})
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// SettleOperation handles POST /api/v1/operations/{operationID}/settle
func (s *Server) SettleOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	var req SettleRequest
	if !decode(w, r, &req, false) {
		return
	}
	op, err := s.operations.Settle(r.Context(), id, req.Outcome, req.Note)
	if err != nil {
		writeError(w, err, ref{operationID: id})
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// CancelOperation handles POST /api/v1/operations/{operationID}/cancel
func (s *Server) CancelOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	var req NoteRequest
	if !decode(w, r, &req, true) {
		return
	}
	op, err := s.operations.Cancel(r.Context(), id, req.Note)
	if err != nil {
		writeError(w, err, ref{operationID: id})
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// --- Incentives ---

// ListIncentives handles GET /api/v1/incentives
func (s *Server) ListIncentives(w http.ResponseWriter, r *http.Request) {
	list, err := s.incentives.List(r.Context())
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	if list == nil {
		list = []model.Incentive{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateIncentive handles POST /api/v1/incentives
func (s *Server) CreateIncentive(w http.ResponseWriter, r *http.Request) {
	var in model.Incentive
	if !decode(w, r, &in, false) {
		return
	}
	created, err := s.incentives.Create(r.Context(), in)
	if err != nil {
		writeError(w, err, ref{accountID: in.AccountID})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetIncentive handles GET /api/v1/incentives/{incentiveID}
func (s *Server) GetIncentive(w http.ResponseWriter, r *http.Request) {
	in, err := s.incentives.Get(r.Context(), chi.URLParam(r, "incentiveID"))
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// GrantIncentive handles POST /api/v1/incentives/{incentiveID}/grant
func (s *Server) GrantIncentive(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if !decode(w, r, &req, false) {
		return
	}
	tx, err := s.incentives.Grant(r.Context(), chi.URLParam(r, "incentiveID"), req.Amount, req.Note)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// --- Reports ---

// KPIs handles GET /api/v1/reports/kpis
func (s *Server) KPIs(w http.ResponseWriter, r *http.Request) {
	k, err := s.reports.KPIs(r.Context())
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, k)
}

// ProfitOverTime handles GET /api/v1/reports/profit?period=day|week|month
func (s *Server) ProfitOverTime(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = report.PeriodDay
	}
	points, err := s.reports.ProfitOverTime(r.Context(), period)
	if err != nil {
		writeError(w, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, points)
}
