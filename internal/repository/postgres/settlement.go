package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ridepay/internal/domain"
)

// SettlementStore implements repository.Settlement on a single SQL transaction.
type SettlementStore struct {
	db *sql.DB
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

// Settle inserts txn and finishes ride under claim token atomically.
func (s *SettlementStore) Settle(ctx context.Context, ride *domain.Ride, txn *domain.Transaction, token string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txTransactionRepo := NewTransactionRepositoryWithTx(tx)
	txRideRepo := NewRideRepositoryWithTx(tx)

	if err = txTransactionRepo.Create(ctx, txn); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}

	if err = txRideRepo.Finish(ctx, ride, token); err != nil {
		return fmt.Errorf("finish ride: %w", err)
	}

	return tx.Commit()
}
