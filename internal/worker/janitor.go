package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"snaplive/internal/tasks"
)

// Enqueuer 是 janitor 用到的 *asynq.Client 方法
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqJanitor 把资源删除作为 asset:delete 任务放入队列
type AsynqJanitor struct {
	client   Enqueuer
	maxRetry int
}

func NewAsynqJanitor(client Enqueuer, maxRetry int) *AsynqJanitor {
	if client == nil {
		panic("Enqueuer cannot be nil for AsynqJanitor")
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &AsynqJanitor{client: client, maxRetry: maxRetry}
}

// ScheduleDelete 在 low 队列中加入一个 asset:delete 任务
func (j *AsynqJanitor) ScheduleDelete(ctx context.Context, handle string) error {
	task, err := tasks.NewAssetDeleteTask(handle)
	if err != nil {
		return err
	}
	if _, err := j.client.EnqueueContext(ctx, task,
		asynq.Queue("low"),
		asynq.MaxRetry(j.maxRetry),
		asynq.Timeout(time.Minute),
	); err != nil {
		return fmt.Errorf("enqueue %s: %w", tasks.TypeAssetDelete, err)
	}
	return nil
}
