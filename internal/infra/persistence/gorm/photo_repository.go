package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"snaplive/internal/domain"
	"snaplive/internal/repository"
)

// GormPhotoRepository is the GORM implementation of repository.PhotoRepository.
type GormPhotoRepository struct {
	db *gorm.DB
}

// NewGormPhotoRepository creates a GormPhotoRepository.
func NewGormPhotoRepository(db *gorm.DB) *GormPhotoRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPhotoRepository")
	}
	return &GormPhotoRepository{db: db}
}

// Create inserts a photo row.
func (r *GormPhotoRepository) Create(ctx context.Context, photo *domain.Photo) error {
	if err := r.db.WithContext(ctx).Create(photo).Error; err != nil {
		if isDuplicateKey(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create photo for event %s: %w", photo.EventID, err)
	}
	return nil
}

// ListByEvent returns a page of photos, newest first, and the total count.
func (r *GormPhotoRepository) ListByEvent(ctx context.Context, eventID string, page, limit int) ([]domain.Photo, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	var total int64
	q := r.db.WithContext(ctx).Model(&domain.Photo{}).Where("event_id = ?", eventID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count photos of event %s: %w", eventID, err)
	}

	photos := make([]domain.Photo, 0, limit)
	if total == 0 {
		return photos, 0, nil
	}
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&photos).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list photos of event %s (page %d): %w", eventID, page, err)
	}
	return photos, total, nil
}

// FindByID looks a photo up by primary key.
func (r *GormPhotoRepository) FindByID(ctx context.Context, id string) (*domain.Photo, error) {
	var photo domain.Photo
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrPhotoNotFound
		}
		return nil, fmt.Errorf("gorm: find photo by id %s: %w", id, err)
	}
	return &photo, nil
}

// Delete removes one photo row.
func (r *GormPhotoRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Photo{})
	if result.Error != nil {
		return fmt.Errorf("gorm: delete photo %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrPhotoNotFound
	}
	return nil
}

// ListHandlesByEvent plucks the asset handles of an event's photos.
func (r *GormPhotoRepository) ListHandlesByEvent(ctx context.Context, eventID string) ([]string, error) {
	var handles []string
	err := r.db.WithContext(ctx).Model(&domain.Photo{}).Where("event_id = ?", eventID).Pluck("public_id", &handles).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list asset handles of event %s: %w", eventID, err)
	}
	return handles, nil
}
