package repository

import (
	"context"

	"snaplive/internal/domain"
)

// EventRepository defines storage of events.
type EventRepository interface {
	// Create inserts a new event. A slug collision returns ErrDuplicateEntry.
	Create(ctx context.Context, event *domain.Event) error

	// FindByID returns ErrEventNotFound when the event does not exist.
	FindByID(ctx context.Context, id string) (*domain.Event, error)

	// FindBySlug returns ErrEventNotFound when no event has the slug.
	FindBySlug(ctx context.Context, slug string) (*domain.Event, error)

	// FindByOwner lists the events of a user, newest first.
	FindByOwner(ctx context.Context, userID uint) ([]domain.Event, error)

	// Update persists the mutable fields (name, type, date, active, QR url).
	// The slug is never written.
	Update(ctx context.Context, event *domain.Event) error

	// DeleteWithPhotos removes the event and all its photo rows in one
	// transaction. Stored assets are left to the caller.
	DeleteWithPhotos(ctx context.Context, id string) error

	// IsSlugTaken reports whether a slug is already used.
	IsSlugTaken(ctx context.Context, slug string) (bool, error)
}
