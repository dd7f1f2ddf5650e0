// Package storage keeps the encoded photo variants. A cloud backend is used
// when configured, with the local disk as the fallback.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrUnknownHandle is returned by Delete for handles no backend owns.
	ErrUnknownHandle = errors.New("storage: unknown asset handle")
	// ErrBackendUnavailable means the handle belongs to a backend that is
	// not configured in this process.
	ErrBackendUnavailable = errors.New("storage: backend not configured")
)

// StoredAsset locates both variants of a stored photo.
type StoredAsset struct {
	URL          string
	ThumbnailURL string
	Handle       string // opaque, accepted by Delete
}

// Backend is one place assets can live.
type Backend interface {
	Name() string
	// Put writes both variants under fileName for eventID.
	Put(ctx context.Context, eventID, fileName string, main, thumb []byte) (StoredAsset, error)
	// PutFile writes a standalone public file at dir/fileName and returns
	// its URL. An existing file is replaced.
	PutFile(ctx context.Context, dir, fileName string, data []byte, contentType string) (string, error)
	// Remove deletes the asset. A missing asset is not an error.
	Remove(ctx context.Context, handle string) error
	// Owns reports whether handle was produced by this backend.
	Owns(handle string) bool
}

// Store is what the services depend on.
type Store interface {
	Store(ctx context.Context, main, thumb []byte, eventID string) (StoredAsset, error)
	Delete(ctx context.Context, handle string) error
	StoreFile(ctx context.Context, dir, fileName string, data []byte, contentType string) (string, error)
}
