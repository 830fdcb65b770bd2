package db

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a write collided with an existing record.
	ErrConflict = errors.New("record already exists")
)
