package task

import (
	"sort"
	"sync"
)

// Slot 时间轮槽位
// 同一槽位可能挂着不同圈数的任务，只有到期的才会被取出
type Slot struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewSlot 创建新槽位
func NewSlot() *Slot {
	return &Slot{
		tasks: make(map[string]*Task),
	}
}

// AddTask 添加任务到槽位
func (s *Slot) AddTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
}

// RemoveTask 从槽位删除任务
func (s *Slot) RemoveTask(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if exists {
		delete(s.tasks, taskID)
	}
	return task, exists
}

// PopDue 取出所有 Deadline <= tick 的任务，按加入顺序排列
func (s *Slot) PopDue(tick uint64) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Task
	for id, task := range s.tasks {
		if task.Deadline <= tick {
			due = append(due, task)
			delete(s.tasks, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	return due
}

// Count 获取槽位任务数量
func (s *Slot) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}
