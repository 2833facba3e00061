package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"ridepay/internal/domain"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

const uniqueViolation = "23505"

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports whether err is a unique violation, optionally on
// a specific constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// nullPoint holds the ST_X/ST_Y pair of a nullable geometry column.
type nullPoint struct {
	lng sql.NullFloat64
	lat sql.NullFloat64
}

func (n *nullPoint) dest() (*sql.NullFloat64, *sql.NullFloat64) {
	return &n.lng, &n.lat
}

func (n nullPoint) point() *domain.Point {
	if !n.lng.Valid || !n.lat.Valid {
		return nil
	}
	return &domain.Point{Lng: n.lng.Float64, Lat: n.lat.Float64}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
