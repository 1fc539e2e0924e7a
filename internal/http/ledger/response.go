package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/agave/factoring-ledger/internal/ledger"
)

type transactionResponse struct {
	ID         int64           `json:"id"`
	CompanyRFC string          `json:"company_rfc"`
	Type       ledger.Type     `json:"type"`
	Amount     int64           `json:"amount"`
	Status     ledger.Status   `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

type balanceResponse struct {
	CompanyRFC       string `json:"company_rfc"`
	AvailableBalance int64  `json:"available_balance"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func toResponse(tx *ledger.PendingTransaction) transactionResponse {
	return transactionResponse{
		ID:         tx.ID,
		CompanyRFC: tx.CompanyRFC,
		Type:       tx.Type,
		Amount:     tx.Amount,
		Status:     tx.Status,
		Reason:     tx.Reason,
		Metadata:   tx.Metadata,
		CreatedAt:  tx.CreatedAt,
		ResolvedAt: tx.ResolvedAt,
	}
}

func toResponseList(txs []*ledger.PendingTransaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError translates ledger error codes into HTTP statuses. Anything
// that is not a ledger error is a 500 and gets logged without leaking
// internals to the caller.
func writeError(w http.ResponseWriter, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		slog.Error("unhandled ledger error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "internal",
			Message: "internal error",
		})

		return
	}

	status := http.StatusInternalServerError

	switch lerr.Code {
	case ledger.CodeInvalidAmount, ledger.CodeInvalidRequest:
		status = http.StatusBadRequest
	case ledger.CodeNotFound:
		status = http.StatusNotFound
	case ledger.CodeInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case ledger.CodeBusy:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{
		Code:    string(lerr.Code),
		Field:   lerr.Field,
		Message: lerr.Error(),
	})
}
