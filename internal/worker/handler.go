package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"snaplive/internal/infra/storage"
	"snaplive/internal/tasks"
)

// AssetDeleter 按 handle 删除已存储的资源，storage.Store 实现了该接口
type AssetDeleter interface {
	Delete(ctx context.Context, handle string) error
}

// AssetDeleteHandler 处理 asset:delete 任务
type AssetDeleteHandler struct {
	store AssetDeleter
}

func NewAssetDeleteHandler(store AssetDeleter) *AssetDeleteHandler {
	if store == nil {
		panic("AssetDeleter cannot be nil for AssetDeleteHandler")
	}
	return &AssetDeleteHandler{store: store}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *AssetDeleteHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	// 1. 获取任务信息用于日志
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	// 2. 解析 payload，格式错误的任务重试也没有意义
	payload, err := tasks.ParseAssetDeletePayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to decode task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("handle", payload.Handle)

	// 3. 删除资源，未知 handle 不重试，其他错误交给 asynq 重试
	if err := h.store.Delete(ctx, payload.Handle); err != nil {
		if errors.Is(err, storage.ErrUnknownHandle) {
			logCtx.WithError(err).Warn("Dropping task for unknown asset handle")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logCtx.WithError(err).Warn("Failed to delete asset, will retry")
		return fmt.Errorf("delete asset %s: %w", payload.Handle, err)
	}

	logCtx.Info("Asset deleted")
	return nil
}
