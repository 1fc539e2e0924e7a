package ledger

import (
	"context"
	"fmt"
	"log/slog"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	GetAccount(ctx context.Context, rfc string) (*Account, error)
	UpsertAccount(ctx context.Context, rfc string, settledBalance int64) error
	GetPendingTransaction(ctx context.Context, id int64) (*PendingTransaction, error)
	SumPendingWithdrawals(ctx context.Context, rfc string) (int64, error)
	InsertPendingTransaction(ctx context.Context, tx *PendingTransaction) error
	ListTransactions(ctx context.Context, filter ListFilter) ([]*PendingTransaction, error)

	Begin(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is a single store transaction. LockAccount and LockPending
// take row locks that serialize all balance-affecting work on one
// account; every check-then-write sequence in the service runs between
// Begin and Commit so no two holds can be admitted against the same
// stale balance.
type LedgerTx interface {
	LockAccount(ctx context.Context, rfc string) (*Account, error)
	LockPending(ctx context.Context, id int64) (*PendingTransaction, error)
	SumPendingWithdrawals(ctx context.Context, rfc string) (int64, error)
	InsertPending(ctx context.Context, tx *PendingTransaction) error
	UpdateBalance(ctx context.Context, rfc string, settledBalance int64) error
	Resolve(ctx context.Context, id int64, status Status, reason string) error
	Commit() error
	Rollback() error
}

// Notifier receives domain events after the ledger mutation has
// committed. Delivery failures are logged and swallowed; the committed
// ledger state is the source of truth.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

type Service struct {
	repo     Repository
	notifier Notifier
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// AvailableBalance is the only balance value surfaced to callers:
// the settled balance minus every amount reserved by a pending
// withdrawal.
func (s *Service) AvailableBalance(ctx context.Context, rfc string) (int64, error) {
	acct, err := s.repo.GetAccount(ctx, rfc)
	if err != nil {
		return 0, err
	}

	held, err := s.repo.SumPendingWithdrawals(ctx, rfc)
	if err != nil {
		return 0, fmt.Errorf("summing pending withdrawals: %w", err)
	}

	return acct.SettledBalance - held, nil
}

// CreateWithdraw places a hold against the account's available balance.
// The sufficiency check and the insert run under the account row lock,
// so two concurrent withdrawals cannot both pass against a balance with
// room for only one. The settled balance is untouched until approval.
func (s *Service) CreateWithdraw(ctx context.Context, rfc string, amount int64) (*PendingTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ltx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger tx: %w", err)
	}
	defer ltx.Rollback()

	acct, err := ltx.LockAccount(ctx, rfc)
	if err != nil {
		return nil, err
	}

	held, err := ltx.SumPendingWithdrawals(ctx, rfc)
	if err != nil {
		return nil, fmt.Errorf("summing pending withdrawals: %w", err)
	}

	if amount > acct.SettledBalance-held {
		return nil, ErrInsufficientBalance
	}

	tx := &PendingTransaction{
		CompanyRFC: rfc,
		Type:       TypeWithdraw,
		Amount:     amount,
		Status:     StatusPending,
	}
	if err := ltx.InsertPending(ctx, tx); err != nil {
		return nil, fmt.Errorf("inserting withdraw hold: %w", err)
	}

	if err := ltx.Commit(); err != nil {
		return nil, fmt.Errorf("committing withdraw hold: %w", err)
	}

	s.publish(ctx, newEvent(EventWithdrawCreated, tx))

	return tx, nil
}

// CreateDeposit records money on its way in. No balance check and no
// reservation: the account is only credited once the deposit is
// approved.
func (s *Service) CreateDeposit(ctx context.Context, rfc string, amount int64, metadata []byte) (*PendingTransaction, error) {
	return s.createCredit(ctx, rfc, TypeDeposit, amount, metadata)
}

// CreateInvoicePayment records a client paying down a funded invoice.
// Same contract as a deposit; the paying company's account is credited
// on approval.
func (s *Service) CreateInvoicePayment(ctx context.Context, rfc string, amount int64, metadata []byte) (*PendingTransaction, error) {
	return s.createCredit(ctx, rfc, TypeInvoicePayment, amount, metadata)
}

func (s *Service) createCredit(ctx context.Context, rfc string, typ Type, amount int64, metadata []byte) (*PendingTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.repo.GetAccount(ctx, rfc); err != nil {
		return nil, err
	}

	tx := &PendingTransaction{
		CompanyRFC: rfc,
		Type:       typ,
		Amount:     amount,
		Status:     StatusPending,
		Metadata:   metadata,
	}
	if err := s.repo.InsertPendingTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("inserting %s: %w", typ, err)
	}

	s.publish(ctx, newEvent(creationEventKind(typ), tx))

	return tx, nil
}

// Approve finalizes a pending transaction. Withdrawals are re-validated
// against the current available balance excluding their own
// reservation: the settled balance may have shrunk since the hold was
// created. Resolving an unknown or already-resolved id fails with
// ErrNotFound either way; the caller cannot tell the two apart and must
// not retry.
func (s *Service) Approve(ctx context.Context, id int64) (*PendingTransaction, error) {
	ltx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger tx: %w", err)
	}
	defer ltx.Rollback()

	tx, err := ltx.LockPending(ctx, id)
	if err != nil {
		return nil, err
	}

	acct, err := ltx.LockAccount(ctx, tx.CompanyRFC)
	if err != nil {
		return nil, err
	}

	if tx.Debits() {
		held, err := ltx.SumPendingWithdrawals(ctx, tx.CompanyRFC)
		if err != nil {
			return nil, fmt.Errorf("summing pending withdrawals: %w", err)
		}

		// Available balance with this hold's own reservation excluded.
		if tx.Amount > acct.SettledBalance-(held-tx.Amount) {
			return nil, ErrInsufficientBalance
		}

		if err := ltx.UpdateBalance(ctx, tx.CompanyRFC, acct.SettledBalance-tx.Amount); err != nil {
			return nil, fmt.Errorf("debiting settled balance: %w", err)
		}
	} else {
		if err := ltx.UpdateBalance(ctx, tx.CompanyRFC, acct.SettledBalance+tx.Amount); err != nil {
			return nil, fmt.Errorf("crediting settled balance: %w", err)
		}
	}

	if err := ltx.Resolve(ctx, id, StatusApproved, ""); err != nil {
		return nil, err
	}

	if err := ltx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}

	tx.Status = StatusApproved
	s.publish(ctx, newEvent(EventPendingTransactionApproved, tx))

	return tx, nil
}

// Reject discards a pending transaction. No balance mutation for any
// type: a rejected withdraw simply stops counting against the
// available balance. The reason is mandatory and stored on the row.
func (s *Service) Reject(ctx context.Context, id int64, reason string) (*PendingTransaction, error) {
	if reason == "" {
		return nil, ErrInvalidRequest.WithField("reason")
	}

	ltx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger tx: %w", err)
	}
	defer ltx.Rollback()

	tx, err := ltx.LockPending(ctx, id)
	if err != nil {
		return nil, err
	}

	// Rejections still serialize on the account row so they interleave
	// cleanly with concurrent hold creation on the same company.
	if _, err := ltx.LockAccount(ctx, tx.CompanyRFC); err != nil {
		return nil, err
	}

	if err := ltx.Resolve(ctx, id, StatusRejected, reason); err != nil {
		return nil, err
	}

	if err := ltx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rejection: %w", err)
	}

	tx.Status = StatusRejected
	tx.Reason = reason
	s.publish(ctx, newEvent(EventPendingTransactionRejected, tx))

	return tx, nil
}

// Get returns a single transaction by id, pending or resolved.
func (s *Service) Get(ctx context.Context, id int64) (*PendingTransaction, error) {
	return s.repo.GetPendingTransaction(ctx, id)
}

// List returns transactions matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*PendingTransaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Publish(ctx, ev); err != nil {
		slog.Error("failed to publish ledger event",
			"kind", ev.Kind,
			"transaction_id", ev.TransactionID,
			"company_rfc", ev.CompanyRFC,
			"error", err)
	}
}
