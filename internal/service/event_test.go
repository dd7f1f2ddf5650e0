package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"snaplive/internal/domain"
	"snaplive/internal/repository"
	"snaplive/internal/repository/mocks"
	"snaplive/internal/service"
)

func TestEventService_Create_DemoMode(t *testing.T) {
	events := new(mocks.EventRepository)
	files := new(filePublisher)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), files, "https://snap.example.com/")
	ctx := context.Background()

	events.On("IsSlugTaken", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	events.On("Create", ctx, mock.AnythingOfType("*domain.Event")).Return(nil).Once()
	events.On("Update", ctx, mock.AnythingOfType("*domain.Event")).Return(nil).Once()

	ev, err := svc.Create(ctx, 7, service.CreateEventInput{Name: "Boda de Ana & Luis", Type: "Wedding", EventDate: "2026-12-24"})
	require.NoError(t, err)
	assert.Equal(t, uint(7), ev.UserID)
	assert.Equal(t, domain.EventTypeWedding, ev.Type)
	assert.True(t, ev.IsActive)
	assert.True(t, ev.IsPaid)
	assert.Regexp(t, `^boda-de-ana-luis-[0-9a-f]{8}$`, ev.Slug)
	assert.Equal(t, "https://cdn.example.com/qrcodes/qr-"+ev.Slug+".png", ev.QRCodeURL)
	qrPNG, ok := files.File("qrcodes/qr-" + ev.Slug + ".png")
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(qrPNG))
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.Equal(t, time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC), ev.EventDate)
	assert.NotEmpty(t, ev.ID)
	events.AssertExpectations(t)
}

func TestEventService_Create_RetriesSlugCollisions(t *testing.T) {
	events := new(mocks.EventRepository)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "http://localhost:3000")
	ctx := context.Background()

	events.On("IsSlugTaken", ctx, mock.AnythingOfType("string")).Return(true, nil).Once()
	events.On("IsSlugTaken", ctx, mock.AnythingOfType("string")).Return(false, nil).Twice()
	events.On("Create", ctx, mock.AnythingOfType("*domain.Event")).Return(repository.ErrDuplicateEntry).Once()
	events.On("Create", ctx, mock.AnythingOfType("*domain.Event")).Return(nil).Once()
	events.On("Update", ctx, mock.AnythingOfType("*domain.Event")).Return(errors.New("lost connection")).Once()

	ev, err := svc.Create(ctx, 7, service.CreateEventInput{Name: "Fiesta", Type: "party", EventDate: "2026-11-01"})
	require.NoError(t, err, "a failed QR code update does not fail creation")
	assert.NotEmpty(t, ev.Slug)
	events.AssertExpectations(t)
}

func TestEventService_Create_QRCodeFailureIsNotFatal(t *testing.T) {
	events := new(mocks.EventRepository)
	files := &filePublisher{err: errors.New("bucket gone")}
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), files, "snap.example.com")
	ctx := context.Background()
	events.On("IsSlugTaken", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	events.On("Create", ctx, mock.AnythingOfType("*domain.Event")).Return(nil).Once()

	ev, err := svc.Create(ctx, 7, service.CreateEventInput{Name: "Fiesta", Type: "party", EventDate: "2026-11-01"})
	require.NoError(t, err)
	assert.Empty(t, ev.QRCodeURL)
	assert.Equal(t, "https://snap.example.com/event/"+ev.Slug, svc.GuestURL(ev.Slug))
	events.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestEventService_QRCodeDataURL(t *testing.T) {
	events := new(mocks.EventRepository)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "https://snap.example.com")
	ctx := context.Background()
	events.On("FindBySlug", ctx, "fiesta-1a2b3c4d").Return(&domain.Event{Slug: "fiesta-1a2b3c4d", IsActive: true}, nil).Once()
	events.On("FindBySlug", ctx, "missing").Return(nil, repository.ErrNotFound).Once()

	url, err := svc.QRCodeDataURL(ctx, "fiesta-1a2b3c4d")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)

	_, err = svc.QRCodeDataURL(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrEventNotFound)
}

func TestEventService_Create_GivesUpAfterTenCollisions(t *testing.T) {
	events := new(mocks.EventRepository)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	events.On("IsSlugTaken", ctx, mock.AnythingOfType("string")).Return(true, nil).Times(10)

	_, err := svc.Create(ctx, 7, service.CreateEventInput{Name: "Fiesta", Type: "party", EventDate: "2026-11-01"})
	assert.ErrorIs(t, err, service.ErrInternalServer)
	events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEventService_Create_PaymentRequired(t *testing.T) {
	events := new(mocks.EventRepository)
	payments := new(mockPayments)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), payments, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	payments.On("HasAvailablePayment", ctx, uint(7)).Return(false, nil).Once()

	_, err := svc.Create(ctx, 7, service.CreateEventInput{Name: "Fiesta", Type: "party", EventDate: "2026-11-01"})
	assert.ErrorIs(t, err, service.ErrPaymentRequired)
	events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEventService_Create_AttachesPayment(t *testing.T) {
	events := new(mocks.EventRepository)
	payments := new(mockPayments)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), payments, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	payments.On("HasAvailablePayment", ctx, uint(7)).Return(true, nil).Once()
	events.On("IsSlugTaken", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	events.On("Create", ctx, mock.AnythingOfType("*domain.Event")).Return(nil).Once()
	events.On("Update", ctx, mock.AnythingOfType("*domain.Event")).Return(nil).Once()
	payments.On("AttachToEvent", ctx, uint(7), mock.AnythingOfType("string")).Return(nil).Once()

	_, err := svc.Create(ctx, 7, service.CreateEventInput{Name: "Fiesta", Type: "party", EventDate: "2026-11-01"})
	require.NoError(t, err)
	payments.AssertExpectations(t)
}

func TestEventService_Create_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   service.CreateEventInput
	}{
		{"short name", service.CreateEventInput{Name: "ab", Type: "party", EventDate: "2026-11-01"}},
		{"unknown type", service.CreateEventInput{Name: "Fiesta", Type: "rave", EventDate: "2026-11-01"}},
		{"bad date", service.CreateEventInput{Name: "Fiesta", Type: "party", EventDate: "01/11/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := new(mocks.EventRepository)
			svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "")
			_, err := svc.Create(context.Background(), 7, tt.in)
			assert.ErrorIs(t, err, service.ErrInvalidInput)
			events.AssertNotCalled(t, "IsSlugTaken", mock.Anything, mock.Anything)
		})
	}
}

func TestEventService_Update(t *testing.T) {
	events := new(mocks.EventRepository)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	stored := &domain.Event{ID: "ev-1", UserID: 7, Name: "Fiesta", Type: domain.EventTypeParty, Slug: "fiesta-1",
		EventDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), IsActive: true}
	events.On("FindByID", ctx, "ev-1").Return(stored, nil).Once()
	events.On("Update", ctx, stored).Return(nil).Once()

	name, inactive := "Fiesta grande", false
	ev, err := svc.Update(ctx, 7, "ev-1", service.UpdateEventInput{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Fiesta grande", ev.Name)
	assert.False(t, ev.IsActive)
	assert.Equal(t, "fiesta-1", ev.Slug)
	assert.Equal(t, domain.EventTypeParty, ev.Type)
}

func TestEventService_Update_OtherOwnerLooksMissing(t *testing.T) {
	events := new(mocks.EventRepository)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	events.On("FindByID", ctx, "ev-1").Return(&domain.Event{ID: "ev-1", UserID: 7}, nil).Once()

	name := "Mine now"
	_, err := svc.Update(ctx, 9, "ev-1", service.UpdateEventInput{Name: &name})
	assert.ErrorIs(t, err, service.ErrEventNotFound)
	events.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestEventService_Delete_SchedulesEveryAsset(t *testing.T) {
	events := new(mocks.EventRepository)
	photos := new(mocks.PhotoRepository)
	janitor := new(mockJanitor)
	svc := service.NewEventService(events, photos, nil, janitor, new(filePublisher), "")
	ctx := context.Background()

	events.On("FindByID", ctx, "ev-1").Return(&domain.Event{ID: "ev-1", UserID: 7}, nil).Once()
	photos.On("ListHandlesByEvent", ctx, "ev-1").Return([]string{"local_ev-1_a.jpg", "s3_ev-1/b.jpg"}, nil).Once()
	events.On("DeleteWithPhotos", ctx, "ev-1").Return(nil).Once()
	janitor.On("ScheduleDelete", mock.Anything, "local_ev-1_a.jpg").Return(errors.New("queue down")).Once()
	janitor.On("ScheduleDelete", mock.Anything, "s3_ev-1/b.jpg").Return(nil).Once()

	require.NoError(t, svc.Delete(ctx, 7, "ev-1"))
	events.AssertExpectations(t)
	janitor.AssertExpectations(t)
}

func TestEventService_Delete_OtherOwner(t *testing.T) {
	events := new(mocks.EventRepository)
	photos := new(mocks.PhotoRepository)
	svc := service.NewEventService(events, photos, nil, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	events.On("FindByID", ctx, "ev-1").Return(&domain.Event{ID: "ev-1", UserID: 7}, nil).Once()

	assert.ErrorIs(t, svc.Delete(ctx, 8, "ev-1"), service.ErrEventNotFound)
	events.AssertNotCalled(t, "DeleteWithPhotos", mock.Anything, mock.Anything)
}

func TestEventService_GetPublicAndListMine(t *testing.T) {
	events := new(mocks.EventRepository)
	svc := service.NewEventService(events, new(mocks.PhotoRepository), nil, new(mockJanitor), new(filePublisher), "")
	ctx := context.Background()
	events.On("FindBySlug", ctx, "off").Return(&domain.Event{Slug: "off"}, nil).Once()
	events.On("FindByOwner", ctx, uint(7)).Return(nil, nil).Once()

	_, err := svc.GetPublic(ctx, "off")
	assert.ErrorIs(t, err, service.ErrEventNotFound)

	mine, err := svc.ListMine(ctx, 7)
	require.NoError(t, err)
	assert.NotNil(t, mine)
	assert.Empty(t, mine)
}

func TestInlineJanitor_DeletesThroughStore(t *testing.T) {
	store := new(mockStore)
	store.On("Delete", mock.Anything, "local_ev-1_a.jpg").Return(nil).Once()
	require.NoError(t, service.NewInlineJanitor(store).ScheduleDelete(context.Background(), "local_ev-1_a.jpg"))
	store.AssertExpectations(t)
}
