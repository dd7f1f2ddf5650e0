package repository

import (
	"context"

	"snaplive/internal/domain"
)

// PhotoRepository defines durable storage of accepted photos, keyed by event.
type PhotoRepository interface {
	// Create inserts the photo. ID and CreatedAt must already be set.
	Create(ctx context.Context, photo *domain.Photo) error

	// ListByEvent returns one page of an event's photos, newest first, and the
	// total number of photos of the event. page starts at 1.
	ListByEvent(ctx context.Context, eventID string, page, limit int) ([]domain.Photo, int64, error)

	// FindByID returns ErrPhotoNotFound when the photo does not exist.
	FindByID(ctx context.Context, id string) (*domain.Photo, error)

	// Delete removes one photo. Deleting a missing photo returns ErrPhotoNotFound.
	Delete(ctx context.Context, id string) error

	// ListHandlesByEvent returns the asset handles of every photo of an event.
	ListHandlesByEvent(ctx context.Context, eventID string) ([]string, error)
}
