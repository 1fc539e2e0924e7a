package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agave/factoring-ledger/internal/ledger"
)

// rfcTag validates the shape of a Mexican RFC: 12 characters for
// companies, 13 for individuals.
const rfcTag = "required,alphanum,min=12,max=13"

type Handler struct {
	svc      *ledger.Service
	validate *validator.Validate
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) CompanyRoutes(r chi.Router) {
	r.Get("/{rfc}/balance", h.balance)
	r.Post("/{rfc}/withdrawals", h.createWithdraw)
	r.Post("/{rfc}/deposits", h.createDeposit)
	r.Post("/{rfc}/invoice-payments", h.createInvoicePayment)
}

func (h *Handler) TransactionRoutes(r chi.Router, approverOnly func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.With(approverOnly).Post("/{id}/approve", h.approve)
	r.With(approverOnly).Post("/{id}/reject", h.reject)
}

func (h *Handler) rfcParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	rfc := chi.URLParam(r, "rfc")
	if err := h.validate.Var(rfc, rfcTag); err != nil {
		writeError(w, ledger.ErrInvalidRequest.WithField("rfc"))
		return "", false
	}

	return rfc, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, ledger.ErrInvalidRequest.WithField("id"))
		return 0, false
	}

	return id, true
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	rfc, ok := h.rfcParam(w, r)
	if !ok {
		return
	}

	available, err := h.svc.AvailableBalance(r.Context(), rfc)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		CompanyRFC:       rfc,
		AvailableBalance: available,
	})
}

type createWithdrawRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) createWithdraw(w http.ResponseWriter, r *http.Request) {
	rfc, ok := h.rfcParam(w, r)
	if !ok {
		return
	}

	var req createWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ledger.ErrInvalidRequest.WithField("body"))
		return
	}

	tx, err := h.svc.CreateWithdraw(r.Context(), rfc, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(tx))
}

type createCreditRequest struct {
	Amount   int64           `json:"amount"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (h *Handler) createDeposit(w http.ResponseWriter, r *http.Request) {
	h.createCredit(w, r, h.svc.CreateDeposit)
}

func (h *Handler) createInvoicePayment(w http.ResponseWriter, r *http.Request) {
	h.createCredit(w, r, h.svc.CreateInvoicePayment)
}

func (h *Handler) createCredit(
	w http.ResponseWriter,
	r *http.Request,
	create func(ctx context.Context, rfc string, amount int64, metadata []byte) (*ledger.PendingTransaction, error),
) {
	rfc, ok := h.rfcParam(w, r)
	if !ok {
		return
	}

	var req createCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ledger.ErrInvalidRequest.WithField("body"))
		return
	}

	tx, err := create(r.Context(), rfc, req.Amount, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(tx))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ledger.ListFilter{}

	if s := r.URL.Query().Get("rfc"); s != "" {
		if err := h.validate.Var(s, rfcTag); err != nil {
			writeError(w, ledger.ErrInvalidRequest.WithField("rfc"))
			return
		}

		filter.CompanyRFC = new(s)
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(ledger.Status(s))
	}

	if s := r.URL.Query().Get("type"); s != "" {
		filter.Type = new(ledger.Type(s))
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ledger.ErrInvalidRequest.WithField("body"))
		return
	}

	tx, err := h.svc.Reject(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}
