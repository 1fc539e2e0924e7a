package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agave/factoring-ledger/internal/ledger"
)

// lockNotAvailable is the Postgres error code raised when lock_timeout
// expires while waiting on a row lock.
const lockNotAvailable = "55P03"

const defaultLockTimeout = 3 * time.Second

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{db: db, lockTimeout: defaultLockTimeout}
}

// NewWithLockTimeout overrides how long a ledger transaction waits for
// a contended account row before surfacing ledger.ErrBusy.
func NewWithLockTimeout(db *sql.DB, timeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: timeout}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanPendingTransaction reads a pending_transactions row.
// Expected column order: id, company_rfc, type, amount, status, reason, metadata, created_at, resolved_at
func scanPendingTransaction(s scanner) (*ledger.PendingTransaction, error) {
	var tx ledger.PendingTransaction

	var typeStr, statusStr string

	var reason sql.NullString

	var metadata []byte

	var resolvedAt sql.NullTime

	if err := s.Scan(
		&tx.ID, &tx.CompanyRFC, &typeStr, &tx.Amount, &statusStr,
		&reason, &metadata, &tx.CreatedAt, &resolvedAt,
	); err != nil {
		return nil, err
	}

	tx.Type = ledger.Type(typeStr)
	tx.Status = ledger.Status(statusStr)
	tx.Reason = reason.String
	tx.Metadata = metadata

	if resolvedAt.Valid {
		tx.ResolvedAt = &resolvedAt.Time
	}

	return &tx, nil
}

const selectTransactionColumns = `
	id, company_rfc, type, amount, status, reason, metadata, created_at, resolved_at
`

const sumPendingWithdrawalsQuery = `
	SELECT COALESCE(SUM(amount), 0)
	FROM pending_transactions
	WHERE company_rfc = $1 AND type = 'withdraw' AND status = 'pending'
`

func (s *Store) GetAccount(ctx context.Context, rfc string) (*ledger.Account, error) {
	query := `SELECT rfc, settled_balance, updated_at FROM accounts WHERE rfc = $1`

	var acct ledger.Account

	err := s.db.QueryRowContext(ctx, query, rfc).
		Scan(&acct.RFC, &acct.SettledBalance, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound.WithField("rfc")
		}

		return nil, fmt.Errorf("getting account: %w", err)
	}

	return &acct, nil
}

func (s *Store) UpsertAccount(ctx context.Context, rfc string, settledBalance int64) error {
	query := `
		INSERT INTO accounts (rfc, settled_balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (rfc) DO UPDATE SET settled_balance = EXCLUDED.settled_balance, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, rfc, settledBalance); err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}

	return nil
}

func (s *Store) GetPendingTransaction(ctx context.Context, id int64) (*ledger.PendingTransaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM pending_transactions
		WHERE id = $1`

	tx, err := scanPendingTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound.WithField("id")
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) SumPendingWithdrawals(ctx context.Context, rfc string) (int64, error) {
	var sum int64
	if err := s.db.QueryRowContext(ctx, sumPendingWithdrawalsQuery, rfc).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing pending withdrawals: %w", err)
	}

	return sum, nil
}

func (s *Store) InsertPendingTransaction(ctx context.Context, tx *ledger.PendingTransaction) error {
	return insertPending(ctx, s.db, tx)
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.ListFilter) ([]*ledger.PendingTransaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM pending_transactions
		WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.CompanyRFC != nil {
		query += fmt.Sprintf(" AND company_rfc = $%d", argIdx)

		args = append(args, *filter.CompanyRFC)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argIdx)

		args = append(args, *filter.Type)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.PendingTransaction

	for rows.Next() {
		tx, err := scanPendingTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

// Begin opens a ledger transaction. lock_timeout bounds how long row
// locks block; hitting it surfaces as ledger.ErrBusy so callers can
// retry instead of treating contention as a business failure.
func (s *Store) Begin(ctx context.Context) (ledger.LedgerTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger tx: %w", err)
	}

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := dbTx.ExecContext(ctx, timeout); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("setting lock timeout: %w", err)
	}

	return &ledgerTx{tx: dbTx}, nil
}

type ledgerTx struct {
	tx *sql.Tx
}

func (ltx *ledgerTx) Commit() error   { return ltx.tx.Commit() }
func (ltx *ledgerTx) Rollback() error { return ltx.tx.Rollback() }

// LockAccount takes the row lock that serializes every
// balance-affecting operation on one company.
func (ltx *ledgerTx) LockAccount(ctx context.Context, rfc string) (*ledger.Account, error) {
	query := `SELECT rfc, settled_balance, updated_at FROM accounts WHERE rfc = $1 FOR UPDATE`

	var acct ledger.Account

	err := ltx.tx.QueryRowContext(ctx, query, rfc).
		Scan(&acct.RFC, &acct.SettledBalance, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound.WithField("rfc")
		}

		if isLockTimeout(err) {
			return nil, ledger.ErrBusy
		}

		return nil, fmt.Errorf("locking account: %w", err)
	}

	return &acct, nil
}

// LockPending locks a transaction that is still pending. An unknown id
// and an already-resolved one both come back as ErrNotFound; the
// caller cannot distinguish them and must not retry either.
func (ltx *ledgerTx) LockPending(ctx context.Context, id int64) (*ledger.PendingTransaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM pending_transactions
		WHERE id = $1 AND status = 'pending'
		FOR UPDATE`

	tx, err := scanPendingTransaction(ltx.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound.WithField("id")
		}

		if isLockTimeout(err) {
			return nil, ledger.ErrBusy
		}

		return nil, fmt.Errorf("locking pending transaction: %w", err)
	}

	return tx, nil
}

func (ltx *ledgerTx) SumPendingWithdrawals(ctx context.Context, rfc string) (int64, error) {
	var sum int64
	if err := ltx.tx.QueryRowContext(ctx, sumPendingWithdrawalsQuery, rfc).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing pending withdrawals: %w", err)
	}

	return sum, nil
}

func (ltx *ledgerTx) InsertPending(ctx context.Context, tx *ledger.PendingTransaction) error {
	return insertPending(ctx, ltx.tx, tx)
}

func (ltx *ledgerTx) UpdateBalance(ctx context.Context, rfc string, settledBalance int64) error {
	query := `UPDATE accounts SET settled_balance = $1, updated_at = NOW() WHERE rfc = $2`

	if _, err := ltx.tx.ExecContext(ctx, query, settledBalance, rfc); err != nil {
		return fmt.Errorf("updating settled balance: %w", err)
	}

	return nil
}

// Resolve moves a pending transaction to its terminal status. The
// status guard makes resolution idempotence-hostile on purpose: a row
// can only ever leave pending once.
func (ltx *ledgerTx) Resolve(ctx context.Context, id int64, status ledger.Status, reason string) error {
	query := `
		UPDATE pending_transactions
		SET status = $1, reason = NULLIF($2, ''), resolved_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`

	result, err := ltx.tx.ExecContext(ctx, query, status, reason, id)
	if err != nil {
		return fmt.Errorf("resolving transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving transaction: %w", err)
	}

	if affected == 0 {
		return ledger.ErrNotFound.WithField("id")
	}

	return nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertPending(ctx context.Context, db rowQuerier, tx *ledger.PendingTransaction) error {
	query := `
		INSERT INTO pending_transactions (company_rfc, type, amount, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	var metadata any
	if len(tx.Metadata) > 0 {
		metadata = []byte(tx.Metadata)
	}

	err := db.QueryRowContext(ctx, query,
		tx.CompanyRFC,
		tx.Type,
		tx.Amount,
		tx.Status,
		metadata,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting pending transaction: %w", err)
	}

	return nil
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable
}
