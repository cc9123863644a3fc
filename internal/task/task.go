package task

import (
	"context"
	"time"
)

// TaskFunc 任务执行函数类型
type TaskFunc func(ctx context.Context, target string, metadata map[string]any) error

// Task 定时任务
// Version 由调用方写入，到期回调据此丢弃已过期的计时（例如回合已经推进）
type Task struct {
	ID        string         `json:"id"`        // 任务唯一ID
	Version   int64          `json:"version"`   // 版本号
	Target    string         `json:"target"`    // 操作对象标识 (房间号)
	Delay     time.Duration  `json:"delay"`     // 延迟时长
	Deadline  uint64         `json:"deadline"`  // 到期刻度 (由时间轮写入)
	Fn        TaskFunc       `json:"-"`         // 执行函数
	Metadata  map[string]any `json:"metadata"`  // 元数据
	CreatedAt time.Time      `json:"createdAt"` // 创建时间

	seq uint64
}

// NewTask 创建新任务
func NewTask(id, target string, delay time.Duration, fn TaskFunc) *Task {
	return &Task{
		ID:        id,
		Version:   1,
		Target:    target,
		Delay:     delay,
		Fn:        fn,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now(),
	}
}

// WithVersion 设置版本号
func (t *Task) WithVersion(version int64) *Task {
	t.Version = version
	return t
}

// Execute 执行任务
func (t *Task) Execute(ctx context.Context) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx, t.Target, t.Metadata)
}
