package repository

import "errors"

// Storage-agnostic errors returned by every repository implementation.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry means a unique constraint was violated.
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

var (
	ErrEventNotFound = ErrNotFound
	ErrPhotoNotFound = ErrNotFound
)
