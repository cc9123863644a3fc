package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler 任务调度器
// 实时模式下由内部时钟推进；手动模式下只能通过 Advance 推进，到期任务在调用方协程中同步执行
type Scheduler struct {
	wheel      *TimeWheel
	workerPool *WorkerPool
	manual     bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
	running    bool
	runningMu  sync.RWMutex
}

// NewScheduler 创建实时调度器
func NewScheduler(workerCount int, tick time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		wheel:      NewTimeWheel(tick),
		workerPool: NewWorkerPool(workerCount),
		ctx:        ctx,
		cancel:     cancel,
		logger:     slog.Default().With("component", "Scheduler"),
	}
}

// NewManualScheduler 创建手动推进的调度器
func NewManualScheduler(tick time.Duration) *Scheduler {
	s := NewScheduler(1, tick)
	s.manual = true
	return s
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runningMu.Unlock()

	if s.manual {
		return nil
	}

	s.workerPool.Start()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("scheduler started", "tick", s.wheel.TickDuration())
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.wheel.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if tasks := s.wheel.Tick(); len(tasks) > 0 {
				s.workerPool.SubmitBatch(tasks)
			}
		}
	}
}

// Advance 手动推进 n 刻度并同步执行到期任务
func (s *Scheduler) Advance(n int) {
	for i := 0; i < n; i++ {
		for _, task := range s.wheel.Tick() {
			s.workerPool.execute(-1, task)
		}
	}
}

// AdvanceBy 手动推进一段时长
func (s *Scheduler) AdvanceBy(d time.Duration) {
	s.Advance(int(s.wheel.ticksFor(d)))
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()
	if !s.manual {
		s.workerPool.Stop()
	}

	s.logger.Info("scheduler stopped")
}

// AddTask 添加任务，同 ID 的旧任务被替换
func (s *Scheduler) AddTask(task *Task) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if task.ID == "" {
		return fmt.Errorf("task id is empty")
	}

	s.wheel.AddTask(task)
	return nil
}

// Schedule 便捷方法：创建并添加任务
func (s *Scheduler) Schedule(id, target string, delay time.Duration, version int64, fn TaskFunc) error {
	return s.AddTask(NewTask(id, target, delay, fn).WithVersion(version))
}

// RemoveTask 删除任务，返回是否存在
func (s *Scheduler) RemoveTask(taskID string) bool {
	_, ok := s.wheel.RemoveTask(taskID)
	return ok
}

// Suspend 移除任务并返回剩余时长，用于暂停后按剩余时长恢复
func (s *Scheduler) Suspend(taskID string) (*Task, time.Duration, bool) {
	remaining, ok := s.wheel.Remaining(taskID)
	if !ok {
		return nil, 0, false
	}
	task, ok := s.wheel.RemoveTask(taskID)
	if !ok {
		return nil, 0, false
	}
	return task, remaining, true
}

// Remaining 查询任务剩余时长
func (s *Scheduler) Remaining(taskID string) (time.Duration, bool) {
	return s.wheel.Remaining(taskID)
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	return s.running
}

// GetStats 获取调度器统计信息
func (s *Scheduler) GetStats() map[string]any {
	return map[string]any{
		"running":        s.IsRunning(),
		"manual":         s.manual,
		"currentTick":    s.wheel.CurrentTick(),
		"totalTaskCount": s.wheel.GetTotalTaskCount(),
		"workerCount":    s.workerPool.workerCount,
	}
}
