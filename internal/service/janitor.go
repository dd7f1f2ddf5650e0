package service

import "context"

// InlineJanitor deletes assets synchronously through the store. It is used
// when no task queue is configured.
type InlineJanitor struct {
	store AssetStore
}

func NewInlineJanitor(store AssetStore) *InlineJanitor {
	if store == nil {
		panic("AssetStore cannot be nil for InlineJanitor")
	}
	return &InlineJanitor{store: store}
}

func (j *InlineJanitor) ScheduleDelete(ctx context.Context, handle string) error {
	return j.store.Delete(ctx, handle)
}
