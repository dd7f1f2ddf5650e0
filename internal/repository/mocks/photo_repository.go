package mocks

import (
	"context"

	"snaplive/internal/domain"

	"github.com/stretchr/testify/mock"
)

// PhotoRepository is a mock of repository.PhotoRepository.
type PhotoRepository struct {
	mock.Mock
}

func (m *PhotoRepository) Create(ctx context.Context, photo *domain.Photo) error {
	args := m.Called(ctx, photo)
	return args.Error(0)
}

func (m *PhotoRepository) ListByEvent(ctx context.Context, eventID string, page, limit int) ([]domain.Photo, int64, error) {
	args := m.Called(ctx, eventID, page, limit)
	photos, _ := args.Get(0).([]domain.Photo)
	return photos, args.Get(1).(int64), args.Error(2)
}

func (m *PhotoRepository) FindByID(ctx context.Context, id string) (*domain.Photo, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*domain.Photo); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PhotoRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *PhotoRepository) ListHandlesByEvent(ctx context.Context, eventID string) ([]string, error) {
	args := m.Called(ctx, eventID)
	handles, _ := args.Get(0).([]string)
	return handles, args.Error(1)
}
