package task

import (
	"sync"
	"time"
)

const (
	// SlotCount 时间轮槽位数量
	SlotCount = 60
)

// TimeWheel 时间轮
// 任务按绝对刻度记录到期时间，延迟可以超过一圈
type TimeWheel struct {
	slots   [SlotCount]*Slot
	mu      sync.RWMutex
	current uint64            // 已推进的刻度数
	index   map[string]uint64 // taskID -> deadline
	tick    time.Duration     // 每一刻度的时长
	seq     uint64
}

// NewTimeWheel 创建时间轮
func NewTimeWheel(tick time.Duration) *TimeWheel {
	if tick <= 0 {
		tick = time.Second
	}
	tw := &TimeWheel{
		index: make(map[string]uint64),
		tick:  tick,
	}

	for i := 0; i < SlotCount; i++ {
		tw.slots[i] = NewSlot()
	}

	return tw
}

// ticksFor 将时长换算为刻度，向上取整，最少一刻度
func (tw *TimeWheel) ticksFor(d time.Duration) uint64 {
	if d <= 0 {
		return 1
	}
	n := uint64((d + tw.tick - 1) / tw.tick)
	if n == 0 {
		n = 1
	}
	return n
}

// AddTask 添加任务到时间轮，同 ID 的旧任务会被替换
func (tw *TimeWheel) AddTask(task *Task) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if old, ok := tw.index[task.ID]; ok {
		tw.slots[old%SlotCount].RemoveTask(task.ID)
	}

	tw.seq++
	task.seq = tw.seq
	task.Deadline = tw.current + tw.ticksFor(task.Delay)
	tw.index[task.ID] = task.Deadline
	tw.slots[task.Deadline%SlotCount].AddTask(task)
}

// RemoveTask 从时间轮删除任务
func (tw *TimeWheel) RemoveTask(taskID string) (*Task, bool) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	deadline, ok := tw.index[taskID]
	if !ok {
		return nil, false
	}
	delete(tw.index, taskID)
	return tw.slots[deadline%SlotCount].RemoveTask(taskID)
}

// Remaining 任务距离到期的剩余时长
func (tw *TimeWheel) Remaining(taskID string) (time.Duration, bool) {
	tw.mu.RLock()
	defer tw.mu.RUnlock()

	deadline, ok := tw.index[taskID]
	if !ok {
		return 0, false
	}
	return time.Duration(deadline-tw.current) * tw.tick, true
}

// Tick 推进一刻度，返回到期任务
func (tw *TimeWheel) Tick() []*Task {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.current++
	due := tw.slots[tw.current%SlotCount].PopDue(tw.current)
	for _, task := range due {
		delete(tw.index, task.ID)
	}
	return due
}

// CurrentTick 获取当前刻度
func (tw *TimeWheel) CurrentTick() uint64 {
	tw.mu.RLock()
	defer tw.mu.RUnlock()

	return tw.current
}

// TickDuration 每一刻度的时长
func (tw *TimeWheel) TickDuration() time.Duration {
	return tw.tick
}

// GetTotalTaskCount 获取所有槽位的任务总数
func (tw *TimeWheel) GetTotalTaskCount() int {
	tw.mu.RLock()
	defer tw.mu.RUnlock()

	return len(tw.index)
}
