package domain

import "time"

// Lifecycle holds the bookkeeping timestamps shared by every persisted entity.
// Rows are never physically removed; DeletedAt marks a soft delete.
type Lifecycle struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the entity has been soft-deleted.
func (l Lifecycle) Deleted() bool {
	return l.DeletedAt != nil
}

// Touch sets UpdatedAt, and CreatedAt when it is still zero.
func (l *Lifecycle) Touch(now time.Time) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
}
