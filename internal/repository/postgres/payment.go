package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridepay/internal/domain"
	"ridepay/internal/secret"
)

// PaymentMethodRepository is a PostgreSQL implementation of
// repository.PaymentMethodRepository. Tokens are stored as ciphertext only.
type PaymentMethodRepository struct {
	q Querier
}

// NewPaymentMethodRepository creates a new PostgreSQL payment method repository.
func NewPaymentMethodRepository(db *sql.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{q: db}
}

// Create persists a new payment method.
func (r *PaymentMethodRepository) Create(ctx context.Context, method *domain.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (id, user_id, token, payment_source_id, type, default_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		method.ID,
		method.UserID,
		method.Token.Ciphertext(),
		method.PaymentSourceID,
		method.Type,
		method.Default,
		method.CreatedAt,
		method.UpdatedAt,
	)
	return err
}

// CountByUser returns the number of live methods the user holds.
func (r *PaymentMethodRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM payment_methods WHERE user_id = $1 AND deleted_at IS NULL`

	var count int
	err := r.q.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

// FindDefaultByUser retrieves the most recently created live default method.
// Returns nil if the user has none.
func (r *PaymentMethodRepository) FindDefaultByUser(ctx context.Context, userID string) (*domain.PaymentMethod, error) {
	query := `
		SELECT id, user_id, token, payment_source_id, type, default_method, created_at, updated_at
		FROM payment_methods
		WHERE user_id = $1 AND default_method AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var (
		method     domain.PaymentMethod
		ciphertext string
	)
	err := r.q.QueryRowContext(ctx, query, userID).Scan(
		&method.ID,
		&method.UserID,
		&ciphertext,
		&method.PaymentSourceID,
		&method.Type,
		&method.Default,
		&method.CreatedAt,
		&method.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	method.Token = secret.FromCiphertext[string](ciphertext)
	return &method, nil
}
