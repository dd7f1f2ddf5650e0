package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"snaplive/internal/domain"
	"snaplive/internal/qr"
	"snaplive/internal/repository"
)

const (
	slugAttempts = 10
	qrCodeDir    = "qrcodes"
)

// CreateEventInput is what an organizer submits to create an event.
type CreateEventInput struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	EventDate string `json:"eventDate"`
}

// UpdateEventInput patches an event. Nil fields are left untouched.
type UpdateEventInput struct {
	Name      *string `json:"name"`
	Type      *string `json:"type"`
	EventDate *string `json:"eventDate"`
	IsActive  *bool   `json:"isActive"`
}

// EventService manages the lifecycle of events for their organizers.
type EventService struct {
	eventRepo   repository.EventRepository
	photoRepo   repository.PhotoRepository
	payments    PaymentVerifier // nil runs in demo mode
	janitor     AssetJanitor
	files       FilePublisher
	frontendURL string
	log         *logrus.Entry
}

// NewEventService creates an EventService. A nil verifier lets every
// organizer create events without paying.
func NewEventService(
	eventRepo repository.EventRepository,
	photoRepo repository.PhotoRepository,
	payments PaymentVerifier,
	janitor AssetJanitor,
	files FilePublisher,
	frontendURL string,
) *EventService {
	if eventRepo == nil {
		panic("EventRepository cannot be nil for EventService")
	}
	if photoRepo == nil {
		panic("PhotoRepository cannot be nil for EventService")
	}
	if janitor == nil {
		panic("AssetJanitor cannot be nil for EventService")
	}
	if files == nil {
		panic("FilePublisher cannot be nil for EventService")
	}
	frontendURL = strings.TrimRight(frontendURL, "/")
	if frontendURL != "" && !strings.HasPrefix(frontendURL, "http") {
		frontendURL = "https://" + frontendURL
	}
	return &EventService{
		eventRepo:   eventRepo,
		photoRepo:   photoRepo,
		payments:    payments,
		janitor:     janitor,
		files:       files,
		frontendURL: frontendURL,
		log:         logrus.WithField("component", "event_service"),
	}
}

// GuestURL is the guest page encoded in an event's QR code.
func (s *EventService) GuestURL(slug string) string {
	return s.frontendURL + "/event/" + slug
}

// QRCodeDataURL renders the QR code of an active event as a base64 PNG
// data URL.
func (s *EventService) QRCodeDataURL(ctx context.Context, slug string) (string, error) {
	event, err := s.GetPublic(ctx, slug)
	if err != nil {
		return "", err
	}
	url, err := qr.DataURL(s.GuestURL(event.Slug), qr.DefaultSize)
	if err != nil {
		s.log.WithError(err).WithField("event_slug", slug).Error("Failed to render QR code")
		return "", ErrInternalServer
	}
	return url, nil
}

// publishQRCode renders the QR code PNG, stores it and records its URL.
func (s *EventService) publishQRCode(ctx context.Context, event *domain.Event) error {
	png, err := qr.PNG(s.GuestURL(event.Slug), qr.DefaultSize)
	if err != nil {
		return err
	}
	url, err := s.files.StoreFile(ctx, qrCodeDir, "qr-"+event.Slug+".png", png, "image/png")
	if err != nil {
		return err
	}
	event.QRCodeURL = url
	return s.eventRepo.Update(ctx, event)
}

// Create validates the input, checks the payment and stores a new active
// event under a fresh slug.
func (s *EventService) Create(ctx context.Context, ownerID uint, in CreateEventInput) (*domain.Event, error) {
	logCtx := s.log.WithField("user_id", ownerID)

	name, eventType, date, err := validateEventFields(in.Name, in.Type, in.EventDate)
	if err != nil {
		return nil, err
	}

	if s.payments != nil {
		ok, err := s.payments.HasAvailablePayment(ctx, ownerID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to check payment")
			return nil, ErrInternalServer
		}
		if !ok {
			return nil, ErrPaymentRequired
		}
	}

	event := &domain.Event{
		UserID:    ownerID,
		Name:      name,
		Type:      eventType,
		EventDate: date,
		IsActive:  true,
		IsPaid:    true,
	}
	if err := s.insertWithUniqueSlug(ctx, event); err != nil {
		logCtx.WithError(err).Error("Failed to create event")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithFields(logrus.Fields{"event_id": event.ID, "event_slug": event.Slug})

	bestEffort(logCtx, "publish qr code", func() error {
		return s.publishQRCode(ctx, event)
	})
	if s.payments != nil {
		bestEffort(logCtx, "attach payment", func() error {
			return s.payments.AttachToEvent(ctx, ownerID, event.ID)
		})
	}

	logCtx.Info("Event created")
	return event, nil
}

func (s *EventService) insertWithUniqueSlug(ctx context.Context, event *domain.Event) error {
	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug := generateSlug(event.Name)
		taken, err := s.eventRepo.IsSlugTaken(ctx, slug)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		event.ID = newID()
		event.Slug = slug
		err = s.eventRepo.Create(ctx, event)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			continue
		}
		return err
	}
	return fmt.Errorf("no free slug after %d attempts", slugAttempts)
}

// GetPublic returns an active event by slug.
func (s *EventService) GetPublic(ctx context.Context, slug string) (*domain.Event, error) {
	event, err := s.eventRepo.FindBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.WithError(err).WithField("event_slug", slug).Error("Failed to load event")
		}
		return nil, mapRepoError(err, ErrEventNotFound)
	}
	if !event.IsActive {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// ListMine returns the events owned by ownerID.
func (s *EventService) ListMine(ctx context.Context, ownerID uint) ([]domain.Event, error) {
	events, err := s.eventRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", ownerID).Error("Failed to list events")
		return nil, ErrInternalServer
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

// Update applies a patch to an event owned by ownerID. Events of other
// owners are reported as not found.
func (s *EventService) Update(ctx context.Context, ownerID uint, id string, patch UpdateEventInput) (*domain.Event, error) {
	logCtx := s.log.WithFields(logrus.Fields{"user_id": ownerID, "event_id": id})

	event, err := s.ownedEvent(ctx, logCtx, ownerID, id)
	if err != nil {
		return nil, err
	}

	name, typ, date := event.Name, string(event.Type), event.EventDate.Format(domain.DateLayout)
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.Type != nil {
		typ = *patch.Type
	}
	if patch.EventDate != nil {
		date = *patch.EventDate
	}
	event.Name, event.Type, event.EventDate, err = validateEventFields(name, typ, date)
	if err != nil {
		return nil, err
	}
	if patch.IsActive != nil {
		event.IsActive = *patch.IsActive
	}

	if err := s.eventRepo.Update(ctx, event); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to update event")
		}
		return nil, mapRepoError(err, ErrEventNotFound)
	}
	logCtx.Info("Event updated")
	return event, nil
}

// Delete removes an event owned by ownerID together with its photo rows and
// schedules removal of every stored asset.
func (s *EventService) Delete(ctx context.Context, ownerID uint, id string) error {
	logCtx := s.log.WithFields(logrus.Fields{"user_id": ownerID, "event_id": id})

	if _, err := s.ownedEvent(ctx, logCtx, ownerID, id); err != nil {
		return err
	}
	handles, err := s.photoRepo.ListHandlesByEvent(ctx, id)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list asset handles")
		return ErrInternalServer
	}
	if err := s.eventRepo.DeleteWithPhotos(ctx, id); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to delete event")
		}
		return mapRepoError(err, ErrEventNotFound)
	}

	ctx = context.WithoutCancel(ctx)
	for _, h := range handles {
		handle := h
		bestEffort(logCtx.WithField("handle", handle), "schedule asset delete", func() error {
			return s.janitor.ScheduleDelete(ctx, handle)
		})
	}
	logCtx.WithField("photos", len(handles)).Info("Event deleted")
	return nil
}

func (s *EventService) ownedEvent(ctx context.Context, logCtx *logrus.Entry, ownerID uint, id string) (*domain.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to load event")
		}
		return nil, mapRepoError(err, ErrEventNotFound)
	}
	if event.UserID != ownerID {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func validateEventFields(name, typ, date string) (string, domain.EventType, time.Time, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 100 {
		return "", "", time.Time{}, fmt.Errorf("%w: name must be between 3 and 100 characters", ErrInvalidInput)
	}
	eventType := domain.EventType(strings.ToLower(strings.TrimSpace(typ)))
	if !eventType.Valid() {
		return "", "", time.Time{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, typ)
	}
	d, err := domain.ParseEventDate(date)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return name, eventType, d, nil
}
