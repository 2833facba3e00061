package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridepay/internal/domain"
	"ridepay/internal/logger"
	"ridepay/internal/repository"
)

const defaultReconcileBatch = 500

// Processor statuses that mean money may have moved.
var chargedStatuses = map[string]bool{
	"APPROVED": true,
	"PENDING":  true,
}

// ReconcileMismatch is a locally failed transaction the processor reports as
// charged or pending.
type ReconcileMismatch struct {
	TransactionID          string `json:"transaction_id"`
	RideID                 string `json:"ride_id"`
	Reference              string `json:"reference"`
	Amount                 int64  `json:"amount"`
	ProcessorTransactionID string `json:"processor_transaction_id"`
	ProcessorStatus        string `json:"processor_status"`
	ProcessorAmountInCents int64  `json:"processor_amount_in_cents"`
}

// ReconcileFailure is a transaction that could not be checked.
type ReconcileFailure struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error"`
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	Since      time.Time           `json:"since"`
	Checked    int                 `json:"checked"`
	Mismatches []ReconcileMismatch `json:"mismatches"`
	Failures   []ReconcileFailure  `json:"failures"`
}

// Reconciler compares failed local transactions with the processor's view.
// It never writes; corrective action is left to an operator.
type Reconciler struct {
	transactions repository.TransactionRepository
	gateway      PaymentGateway
	batch        int
	log          *zap.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(transactions repository.TransactionRepository, gw PaymentGateway, log *zap.Logger) *Reconciler {
	return &Reconciler{
		transactions: transactions,
		gateway:      gw,
		batch:        defaultReconcileBatch,
		log:          logger.OrNop(log),
	}
}

// Run checks every failed transaction created since the given time.
func (r *Reconciler) Run(ctx context.Context, since time.Time) (*ReconcileReport, error) {
	txns, err := r.transactions.ListFailedSince(ctx, since, r.batch)
	if err != nil {
		return nil, fmt.Errorf("list failed transactions: %w", err)
	}

	report := &ReconcileReport{
		Since:      since,
		Mismatches: []ReconcileMismatch{},
		Failures:   []ReconcileFailure{},
	}
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		mismatch, err := r.check(ctx, txn)
		if err != nil {
			r.log.Warn("transaction not reconciled", zap.String("transaction_id", txn.ID), zap.String("ride_id", txn.RideID), zap.Error(err))
			report.Failures = append(report.Failures, ReconcileFailure{TransactionID: txn.ID, Error: err.Error()})
			continue
		}
		if mismatch != nil {
			r.log.Warn("failed transaction was charged by the processor",
				zap.String("transaction_id", txn.ID),
				zap.String("ride_id", txn.RideID),
				zap.String("processor_transaction_id", mismatch.ProcessorTransactionID),
				zap.String("processor_status", mismatch.ProcessorStatus),
			)
			report.Mismatches = append(report.Mismatches, *mismatch)
		}
	}
	return report, nil
}

func (r *Reconciler) check(ctx context.Context, txn *domain.Transaction) (*ReconcileMismatch, error) {
	mismatch := func(id, status string, cents int64) *ReconcileMismatch {
		return &ReconcileMismatch{
			TransactionID:          txn.ID,
			RideID:                 txn.RideID,
			Reference:              txn.Reference,
			Amount:                 int64(txn.Amount),
			ProcessorTransactionID: id,
			ProcessorStatus:        status,
			ProcessorAmountInCents: cents,
		}
	}

	if txn.ProcessorTransactionID != "" {
		details, err := r.gateway.GetTransaction(ctx, txn.ProcessorTransactionID)
		if err != nil {
			return nil, err
		}
		if chargedStatuses[details.Status] {
			return mismatch(details.ID, details.Status, details.AmountInCents), nil
		}
		return nil, nil
	}

	if txn.Reference == "" {
		return nil, nil
	}
	found, err := r.gateway.FindTransactionsByReference(ctx, txn.Reference)
	if err != nil {
		return nil, err
	}
	for _, d := range found {
		if chargedStatuses[d.Status] {
			return mismatch(d.ID, d.Status, d.AmountInCents), nil
		}
	}
	return nil, nil
}
