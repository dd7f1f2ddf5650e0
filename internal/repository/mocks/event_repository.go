// Package mocks holds testify mocks of the repository interfaces.
package mocks

import (
	"context"

	"snaplive/internal/domain"

	"github.com/stretchr/testify/mock"
)

// EventRepository is a mock of repository.EventRepository.
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Create(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *EventRepository) FindByID(ctx context.Context, id string) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if e, ok := args.Get(0).(*domain.Event); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *EventRepository) FindBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	args := m.Called(ctx, slug)
	if e, ok := args.Get(0).(*domain.Event); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *EventRepository) FindByOwner(ctx context.Context, userID uint) ([]domain.Event, error) {
	args := m.Called(ctx, userID)
	if e, ok := args.Get(0).([]domain.Event); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *EventRepository) Update(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *EventRepository) DeleteWithPhotos(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *EventRepository) IsSlugTaken(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}
