package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names the domain events emitted after a ledger mutation
// commits.
type EventKind string

const (
	EventWithdrawCreated            EventKind = "WithdrawCreated"
	EventDepositCreated             EventKind = "DepositCreated"
	EventPendingTransactionApproved EventKind = "PendingTransactionApproved"
	EventPendingTransactionRejected EventKind = "PendingTransactionRejected"
)

// Event is the payload handed to the notifier. The ledger constructs it
// after its own state change has committed; delivery is best-effort and
// never affects ledger state.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Kind          EventKind `json:"kind"`
	TransactionID int64     `json:"transaction_id"`
	CompanyRFC    string    `json:"company_rfc"`
	Type          Type      `json:"type"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
	EmittedAt     time.Time `json:"emitted_at"`
}

func newEvent(kind EventKind, tx *PendingTransaction) Event {
	return Event{
		ID:            uuid.New(),
		Kind:          kind,
		TransactionID: tx.ID,
		CompanyRFC:    tx.CompanyRFC,
		Type:          tx.Type,
		Amount:        tx.Amount,
		Reason:        tx.Reason,
		EmittedAt:     time.Now().UTC(),
	}
}

func creationEventKind(t Type) EventKind {
	if t == TypeWithdraw {
		return EventWithdrawCreated
	}

	// Invoice payments announce themselves as deposits; the payload's
	// Type field keeps them distinguishable downstream.
	return EventDepositCreated
}
