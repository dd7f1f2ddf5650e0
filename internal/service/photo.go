package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"snaplive/internal/domain"
	"snaplive/internal/hub"
	"snaplive/internal/repository"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Pagination describes the page returned by PhotoService.List.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// PhotoPage is one page of an event gallery.
type PhotoPage struct {
	Photos     []domain.Photo `json:"photos"`
	Pagination Pagination     `json:"pagination"`
}

// PhotoService serves gallery reads and organizer moderation.
type PhotoService struct {
	eventRepo   repository.EventRepository
	photoRepo   repository.PhotoRepository
	store       AssetStore
	broadcaster Broadcaster
	log         *logrus.Entry
}

func NewPhotoService(eventRepo repository.EventRepository, photoRepo repository.PhotoRepository, store AssetStore, broadcaster Broadcaster) *PhotoService {
	if eventRepo == nil {
		panic("EventRepository cannot be nil for PhotoService")
	}
	if photoRepo == nil {
		panic("PhotoRepository cannot be nil for PhotoService")
	}
	if store == nil {
		panic("AssetStore cannot be nil for PhotoService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for PhotoService")
	}
	return &PhotoService{
		eventRepo:   eventRepo,
		photoRepo:   photoRepo,
		store:       store,
		broadcaster: broadcaster,
		log:         logrus.WithField("component", "photo_service"),
	}
}

// List returns a page of an active event's photos, newest first.
func (s *PhotoService) List(ctx context.Context, slug string, page, limit int) (*PhotoPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	logCtx := s.log.WithFields(logrus.Fields{"event_slug": slug, "page": page, "limit": limit})

	event, err := s.eventRepo.FindBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to load event")
		}
		return nil, mapRepoError(err, ErrEventNotFound)
	}
	if !event.IsActive {
		return nil, ErrEventNotFound
	}

	photos, total, err := s.photoRepo.ListByEvent(ctx, event.ID, page, limit)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list photos")
		return nil, ErrInternalServer
	}
	if photos == nil {
		photos = []domain.Photo{}
	}
	return &PhotoPage{
		Photos: photos,
		Pagination: Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

// Delete removes a photo on behalf of the owner of its event. The row goes
// first; asset removal and the photo-deleted broadcast are best effort.
func (s *PhotoService) Delete(ctx context.Context, callerID uint, photoID string) error {
	logCtx := s.log.WithFields(logrus.Fields{"photo_id": photoID, "user_id": callerID})

	photo, err := s.photoRepo.FindByID(ctx, photoID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to load photo")
		}
		return mapRepoError(err, ErrPhotoNotFound)
	}
	event, err := s.eventRepo.FindByID(ctx, photo.EventID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to load event of photo")
		}
		return mapRepoError(err, ErrPhotoNotFound)
	}
	if event.UserID != callerID {
		logCtx.Warn("Photo delete refused, caller does not own the event")
		return ErrForbidden
	}

	if err := s.photoRepo.Delete(ctx, photo.ID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to delete photo")
		}
		return mapRepoError(err, ErrPhotoNotFound)
	}

	ctx = context.WithoutCancel(ctx)
	bestEffort(logCtx, "delete asset", func() error {
		return s.store.Delete(ctx, photo.PublicID)
	})
	bestEffort(logCtx, "broadcast photo-deleted", func() error {
		_, err := s.broadcaster.Broadcast(event.Slug, hub.MessagePhotoDeleted, map[string]string{"id": photo.ID})
		return err
	})
	logCtx.Info("Photo deleted")
	return nil
}
