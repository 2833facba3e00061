package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridepay/internal/domain"
	"ridepay/internal/repository"
)

const transactionColumns = `id, ride_id, user_id, amount, status, wompi_transaction_id, reference, created_at, updated_at`

// TransactionRepository is a PostgreSQL implementation of repository.TransactionRepository.
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

// NewTransactionRepositoryWithTx creates a transaction repository using a SQL transaction.
func NewTransactionRepositoryWithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Create persists a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, ride_id, user_id, amount, status, wompi_transaction_id, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		txn.ID,
		txn.RideID,
		txn.UserID,
		int64(txn.Amount),
		txn.Status,
		txn.ProcessorTransactionID,
		txn.Reference,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if isUniqueViolation(err, "") {
		return repository.ErrDuplicate
	}
	return err
}

// GetByRideID retrieves the transaction settling a ride.
func (r *TransactionRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ride_id = $1 AND deleted_at IS NULL`

	txn, err := scanTransaction(r.q.QueryRowContext(ctx, query, rideID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ListFailedSince returns failed transactions created at or after since, oldest first.
func (r *TransactionRepository) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'failed' AND created_at >= $1 AND deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT $2
	`

	rows, err := r.q.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		amount int64
	)
	if err := s.Scan(
		&txn.ID,
		&txn.RideID,
		&txn.UserID,
		&amount,
		&txn.Status,
		&txn.ProcessorTransactionID,
		&txn.Reference,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	); err != nil {
		return nil, err
	}
	txn.Amount = domain.Amount(amount)
	return &txn, nil
}
