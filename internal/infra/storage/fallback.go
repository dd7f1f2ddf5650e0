package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every backend call when none is configured.
const DefaultTimeout = 15 * time.Second

// FallbackStore writes to the primary backend and falls back to the secondary
// one when the primary is absent, failing or too slow. Deletes are routed by
// handle prefix.
type FallbackStore struct {
	primary  Backend // may be nil
	fallback Backend
	timeout  time.Duration
	log      *logrus.Entry
}

// NewFallbackStore creates a FallbackStore. fallback is mandatory.
func NewFallbackStore(primary, fallback Backend, timeout time.Duration) *FallbackStore {
	if fallback == nil {
		panic("fallback Backend cannot be nil for FallbackStore")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		log:      logrus.WithField("component", "asset_store"),
	}
}

// Store implements Store.
func (s *FallbackStore) Store(ctx context.Context, main, thumb []byte, eventID string) (StoredAsset, error) {
	fileName := uuid.NewString() + ".jpg"
	logCtx := s.log.WithFields(logrus.Fields{"event_id": eventID, "file": fileName})

	var primaryErr error
	if s.primary != nil {
		asset, err := s.put(ctx, s.primary, eventID, fileName, main, thumb)
		if err == nil {
			return asset, nil
		}
		primaryErr = err
		logCtx.WithError(err).WithField("backend", s.primary.Name()).Warn("Primary asset backend failed, falling back")
	}

	asset, err := s.put(ctx, s.fallback, eventID, fileName, main, thumb)
	if err != nil {
		logCtx.WithError(err).WithField("backend", s.fallback.Name()).Error("Fallback asset backend failed")
		if primaryErr != nil {
			return StoredAsset{}, fmt.Errorf("store asset: %w", errors.Join(primaryErr, err))
		}
		return StoredAsset{}, fmt.Errorf("store asset: %w", err)
	}
	return asset, nil
}

// StoreFile implements Store for files that have no thumbnail, such as
// QR codes. It falls back the same way Store does.
func (s *FallbackStore) StoreFile(ctx context.Context, dir, fileName string, data []byte, contentType string) (string, error) {
	logCtx := s.log.WithFields(logrus.Fields{"dir": dir, "file": fileName})

	var primaryErr error
	if s.primary != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		url, err := s.primary.PutFile(callCtx, dir, fileName, data, contentType)
		cancel()
		if err == nil {
			return url, nil
		}
		primaryErr = err
		logCtx.WithError(err).WithField("backend", s.primary.Name()).Warn("Primary asset backend failed, falling back")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	url, err := s.fallback.PutFile(callCtx, dir, fileName, data, contentType)
	if err != nil {
		if primaryErr != nil {
			return "", fmt.Errorf("store file: %w", errors.Join(primaryErr, err))
		}
		return "", fmt.Errorf("store file: %w", err)
	}
	return url, nil
}

// Delete implements Store. Deleting an asset that is already gone succeeds.
func (s *FallbackStore) Delete(ctx context.Context, handle string) error {
	var owner Backend
	switch {
	case s.fallback.Owns(handle):
		owner = s.fallback
	case s.primary != nil && s.primary.Owns(handle):
		owner = s.primary
	case strings.HasPrefix(handle, S3HandlePrefix):
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, handle)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := owner.Remove(callCtx, handle); err != nil {
		return fmt.Errorf("delete asset via %s: %w", owner.Name(), err)
	}
	return nil
}

func (s *FallbackStore) put(ctx context.Context, b Backend, eventID, fileName string, main, thumb []byte) (StoredAsset, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return b.Put(callCtx, eventID, fileName, main, thumb)
}
