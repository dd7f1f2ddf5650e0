package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeAssetDelete = "asset:delete" // 数据库记录删除后，清理对应的存储资源
)

// AssetDeletePayload 定义 asset:delete 任务的 payload 结构
type AssetDeletePayload struct {
	Handle string `json:"handle"`
}

// NewAssetDeleteTask 创建一个删除 handle 对应资源的任务
func NewAssetDeleteTask(handle string) (*asynq.Task, error) {
	if handle == "" {
		return nil, fmt.Errorf("asset handle is empty")
	}
	payload, err := json.Marshal(AssetDeletePayload{Handle: handle})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAssetDelete, payload), nil
}

// ParseAssetDeletePayload 解析 asset:delete 任务的 payload
func ParseAssetDeletePayload(t *asynq.Task) (AssetDeletePayload, error) {
	var p AssetDeletePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal %s payload: %w", t.Type(), err)
	}
	if p.Handle == "" {
		return p, fmt.Errorf("%s payload has no handle", t.Type())
	}
	return p, nil
}
