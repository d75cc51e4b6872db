package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/atmx/hedge-engine/internal/model"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error       string            `json:"error"`
	Code        string            `json:"code"`
	OperationID string            `json:"operation_id,omitempty"`
	AccountID   string            `json:"account_id,omitempty"`
	Shortfalls  []model.Shortfall `json:"shortfalls,omitempty"`
}

// ref carries the ids a failing request was about.
type ref struct {
	operationID string
	accountID   string
}

var errorCodes = []struct {
	target error
	status int
	code   string
}{
	{model.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{model.ErrInvalidOutcome, http.StatusBadRequest, "invalid_outcome"},
	{model.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{model.ErrOperationNotFound, http.StatusNotFound, "operation_not_found"},
	{model.ErrIncentiveNotFound, http.StatusNotFound, "incentive_not_found"},
	{model.ErrAlreadySettled, http.StatusConflict, "already_settled"},
	{model.ErrWrongState, http.StatusConflict, "wrong_state"},
	{model.ErrLockHeld, http.StatusConflict, "locked"},
	{model.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{model.ErrReconciliationMismatch, http.StatusInternalServerError, "reconciliation_mismatch"},
	{model.ErrDataIntegrity, http.StatusInternalServerError, "data_integrity"},
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error, about ref) {
	status, code := classify(err)
	body := errorBody{
		Error:       err.Error(),
		Code:        code,
		OperationID: about.operationID,
		AccountID:   about.accountID,
	}
	var ife *model.InsufficientFundsError
	if errors.As(err, &ife) {
		body.Shortfalls = ife.Shortfalls
		if body.AccountID == "" && len(ife.Shortfalls) == 1 {
			body.AccountID = ife.Shortfalls[0].AccountID
		}
	}

	switch {
	case status >= 500:
		slog.Error("request failed", "code", code, "err", err)
	case status != http.StatusNotFound:
		slog.Warn("request rejected", "code", code, "err", err)
	}
	writeJSON(w, status, body)
}

// badRequest reports a malformed request that never reached a component.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message, Code: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
