package service

import (
	"errors"

	"snaplive/internal/repository"
)

var (
	ErrEventNotFound   = errors.New("event not found or not active")
	ErrEventExpired    = errors.New("this event has ended, no more photos can be uploaded")
	ErrNoFiles         = errors.New("no photos were uploaded")
	ErrTooManyFiles    = errors.New("too many photos in one upload")
	ErrUnsupportedFile = errors.New("unsupported file")
	ErrAllRejected     = errors.New("the photos were rejected")
	ErrPhotoNotFound   = errors.New("photo not found")
	ErrForbidden       = errors.New("you are not allowed to modify this resource")
	ErrPaymentRequired = errors.New("payment required before creating an event")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternalServer  = errors.New("internal server error")
)

// mapRepoError translates repository errors into service errors. notFound
// is returned for repository.ErrNotFound; everything else is internal.
func mapRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return ErrInternalServer
}
