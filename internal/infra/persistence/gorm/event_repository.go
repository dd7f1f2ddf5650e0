package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"snaplive/internal/domain"
	"snaplive/internal/repository"
)

// GormEventRepository is the GORM implementation of repository.EventRepository.
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository creates a GormEventRepository.
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	if db == nil {
		panic("database connection cannot be nil for GormEventRepository")
	}
	return &GormEventRepository{db: db}
}

// Create inserts a new event.
func (r *GormEventRepository) Create(ctx context.Context, event *domain.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if isDuplicateKey(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create event (slug: %s): %w", event.Slug, err)
	}
	return nil
}

// FindByID looks an event up by primary key.
func (r *GormEventRepository) FindByID(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrEventNotFound
		}
		return nil, fmt.Errorf("gorm: find event by id %s: %w", id, err)
	}
	return &event, nil
}

// FindBySlug looks an event up by its public slug.
func (r *GormEventRepository) FindBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrEventNotFound
		}
		return nil, fmt.Errorf("gorm: find event by slug '%s': %w", slug, err)
	}
	return &event, nil
}

// FindByOwner lists a user's events, newest first.
func (r *GormEventRepository) FindByOwner(ctx context.Context, userID uint) ([]domain.Event, error) {
	var events []domain.Event
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find events of user %d: %w", userID, err)
	}
	return events, nil
}

// Update writes the mutable columns. A map is used so that false and zero
// values are written too.
func (r *GormEventRepository) Update(ctx context.Context, event *domain.Event) error {
	result := r.db.WithContext(ctx).Model(&domain.Event{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
		"name":        event.Name,
		"type":        event.Type,
		"event_date":  event.EventDate,
		"is_active":   event.IsActive,
		"qr_code_url": event.QRCodeURL,
	})
	if result.Error != nil {
		return fmt.Errorf("gorm: update event %s: %w", event.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrEventNotFound
	}
	return nil
}

// DeleteWithPhotos removes the event and its photo rows atomically.
func (r *GormEventRepository) DeleteWithPhotos(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&domain.Photo{}).Error; err != nil {
			return fmt.Errorf("gorm: delete photos of event %s: %w", id, err)
		}
		result := tx.Where("id = ?", id).Delete(&domain.Event{})
		if result.Error != nil {
			return fmt.Errorf("gorm: delete event %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return repository.ErrEventNotFound
		}
		return nil
	})
}

// IsSlugTaken checks slug uniqueness with a COUNT query.
func (r *GormEventRepository) IsSlugTaken(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Event{}).Where("slug = ?", slug).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count events by slug '%s': %w", slug, err)
	}
	return count > 0, nil
}
