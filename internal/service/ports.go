package service

import (
	"context"

	"snaplive/internal/domain"
	"snaplive/internal/imaging"
	"snaplive/internal/infra/storage"
)

// ContentScreener decides whether an image may be published.
// *moderation.Filter implements it.
type ContentScreener interface {
	CheckImage(ctx context.Context, buf []byte) domain.ModerationVerdict
}

// ImageTranscoder renders the stored variants. *imaging.Transcoder implements it.
type ImageTranscoder interface {
	Transcode(buf []byte) (*imaging.Result, error)
}

// AssetStore persists encoded variants. *storage.FallbackStore implements it.
type AssetStore interface {
	Store(ctx context.Context, main, thumb []byte, eventID string) (storage.StoredAsset, error)
	Delete(ctx context.Context, handle string) error
}

// FilePublisher stores standalone public files. *storage.FallbackStore
// implements it.
type FilePublisher interface {
	StoreFile(ctx context.Context, dir, fileName string, data []byte, contentType string) (string, error)
}

// Broadcaster fans messages out to an event room. *hub.Hub implements it.
type Broadcaster interface {
	Broadcast(slug, msgType string, payload interface{}) (int, error)
}

// PaymentVerifier is the billing collaborator consulted before an event is
// created.
type PaymentVerifier interface {
	// HasAvailablePayment reports whether the user holds a completed payment
	// not yet attached to an event.
	HasAvailablePayment(ctx context.Context, userID uint) (bool, error)
	// AttachToEvent consumes that payment for eventID.
	AttachToEvent(ctx context.Context, userID uint, eventID string) error
}

// AssetJanitor removes stored assets outside of the request that orphaned them.
type AssetJanitor interface {
	ScheduleDelete(ctx context.Context, handle string) error
}
