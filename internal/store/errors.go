package store

import "errors"

var (
	// ErrConflict is returned by Insert when a post with the same id already
	// exists for the account. The unique index is the final guard; callers
	// normally check Exists first.
	ErrConflict = errors.New("store: record already exists")

	// ErrNotFound is returned when the requested record or session is absent.
	ErrNotFound = errors.New("store: not found")
)
