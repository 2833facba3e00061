package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("entity already exists")

	// ErrClaimLost is returned when a guarded write finds its finish claim
	// taken over or the ride no longer in progress.
	ErrClaimLost = errors.New("finish claim no longer held")
)
