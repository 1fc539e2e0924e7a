package ledger

import (
	"encoding/json"
	"time"
)

// Type classifies a pending transaction by the direction money moves
// once it is approved.
type Type string

const (
	TypeWithdraw       Type = "withdraw"
	TypeDeposit        Type = "deposit"
	TypeInvoicePayment Type = "invoice_payment"
)

// Status represents the lifecycle state of a pending transaction.
// A transaction is created pending and resolved exactly once; approved
// and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Account is a company's ledger account, keyed by its RFC.
// SettledBalance only changes when a pending transaction is approved.
type Account struct {
	RFC            string
	SettledBalance int64 // centavos
	UpdatedAt      time.Time
}

// PendingTransaction is a hold awaiting back-office resolution.
// Only pending withdrawals reserve funds; deposits and invoice payments
// are additive and stay unreserved until approval.
type PendingTransaction struct {
	ID         int64
	CompanyRFC string
	Type       Type
	Amount     int64 // centavos
	Status     Status
	Reason     string
	Metadata   json.RawMessage
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Resolved reports whether the transaction has reached a terminal state.
func (t *PendingTransaction) Resolved() bool {
	return t.Status != StatusPending
}

// Debits reports whether approving the transaction decreases the
// settled balance.
func (t *PendingTransaction) Debits() bool {
	return t.Type == TypeWithdraw
}

// ListFilter narrows ListTransactions results.
type ListFilter struct {
	CompanyRFC *string
	Status     *Status
	Type       *Type
}
