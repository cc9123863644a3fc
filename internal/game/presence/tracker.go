package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sudooom.im.werewolf/internal/task"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// Status 座位在线状态
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReplaced     Status = "ai_replaced"
)

// DefaultGracePeriod 默认断线宽限期
const DefaultGracePeriod = 300 * time.Second

// Record 断线记录
type Record struct {
	Seat           int       `json:"seat"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
	Deadline       time.Time `json:"deadline"`
	Version        int64     `json:"version"`
	TakenOver      bool      `json:"takenOver"`
}

// Timers 计时器
type Timers interface {
	Schedule(id, target string, delay time.Duration, version int64, fn task.TaskFunc) error
	AddTask(t *task.Task) error
	RemoveTask(id string) bool
	Suspend(id string) (*task.Task, time.Duration, bool)
	Remaining(id string) (time.Duration, bool)
}

// ExpireFunc 宽限期到期回调，在计时协程中调用，实现方应投递到房间的顺序执行协程
type ExpireFunc func(seat int, version int64)

// Tracker 房间内人类座位的在线状态
// 非并发安全，由房间的顺序执行协程独占调用
type Tracker struct {
	roomCode  string
	grace     time.Duration
	timers    Timers
	onExpire  ExpireFunc
	now       func() time.Time
	status    map[int]Status
	records   map[int]*Record
	suspended map[int]*task.Task
	paused    bool
	version   int64
	logger    *slog.Logger
}

// NewTracker 创建在线状态追踪器
func NewTracker(roomCode string, grace time.Duration, timers Timers, onExpire ExpireFunc) *Tracker {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Tracker{
		roomCode:  roomCode,
		grace:     grace,
		timers:    timers,
		onExpire:  onExpire,
		now:       time.Now,
		status:    make(map[int]Status),
		records:   make(map[int]*Record),
		suspended: make(map[int]*task.Task),
		logger:    slog.Default().With("component", "Presence", "roomCode", roomCode),
	}
}

// SetClock 设置时钟
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Track 登记人类座位，初始为在线
func (t *Tracker) Track(seat int) {
	if _, ok := t.status[seat]; !ok {
		t.status[seat] = StatusConnected
	}
}

// Status 座位状态，未登记的座位视为在线
func (t *Tracker) Status(seat int) Status {
	if s, ok := t.status[seat]; ok {
		return s
	}
	return StatusConnected
}

// IsConnected 座位是否在线
func (t *Tracker) IsConnected(seat int) bool {
	return t.Status(seat) == StatusConnected
}

// Record 座位的断线记录
func (t *Tracker) Record(seat int) (Record, bool) {
	r, ok := t.records[seat]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

func (t *Tracker) timerID(seat int) string {
	return fmt.Sprintf("presence:%s:%d", t.roomCode, seat)
}

// Disconnect 座位断线，开启或重置宽限期计时；已被 AI 接管的座位返回 false
func (t *Tracker) Disconnect(seat int) (Record, bool) {
	if t.Status(seat) == StatusReplaced {
		return Record{}, false
	}

	now := t.now()
	t.version++
	rec := &Record{
		Seat:           seat,
		DisconnectedAt: now,
		Deadline:       now.Add(t.grace),
		Version:        t.version,
	}
	t.records[seat] = rec
	t.status[seat] = StatusDisconnected

	id := t.timerID(seat)
	fn := t.expireTask(seat, rec.Version)
	if t.paused {
		t.timers.RemoveTask(id)
		t.suspended[seat] = task.NewTask(id, t.roomCode, t.grace, fn).WithVersion(rec.Version)
	} else if err := t.timers.Schedule(id, t.roomCode, t.grace, rec.Version, fn); err != nil {
		t.logger.Error("failed to arm grace timer", "seat", seat, "error", err)
	}

	t.logger.Info("seat disconnected", "seat", seat, "grace", t.grace, "version", rec.Version)
	return *rec, true
}

func (t *Tracker) expireTask(seat int, version int64) task.TaskFunc {
	return func(ctx context.Context, target string, metadata map[string]any) error {
		if t.onExpire != nil {
			t.onExpire(seat, version)
		}
		return nil
	}
}

// Reconnect 宽限期内重连，取消计时；返回 true 表示从断线恢复
func (t *Tracker) Reconnect(seat int) (bool, error) {
	switch t.Status(seat) {
	case StatusReplaced:
		return false, apperrors.ErrSeatReplaced.WithDetail("seat %d", seat)
	case StatusConnected:
		t.status[seat] = StatusConnected
		return false, nil
	}

	t.timers.RemoveTask(t.timerID(seat))
	delete(t.suspended, seat)
	delete(t.records, seat)
	t.status[seat] = StatusConnected

	t.logger.Info("seat reconnected", "seat", seat)
	return true, nil
}

// Expire 宽限期到期，确认接管；同一断线记录只会成功一次
func (t *Tracker) Expire(seat int, version int64) bool {
	rec, ok := t.records[seat]
	if !ok || rec.Version != version || rec.TakenOver || t.status[seat] != StatusDisconnected {
		return false
	}
	if t.paused {
		return false
	}
	rec.TakenOver = true
	delete(t.records, seat)
	t.status[seat] = StatusReplaced

	t.logger.Info("grace period expired, seat handed to ai", "seat", seat, "disconnectedAt", rec.DisconnectedAt)
	return true
}

// Remaining 宽限期剩余时长
func (t *Tracker) Remaining(seat int) time.Duration {
	if pending, ok := t.suspended[seat]; ok {
		return pending.Delay
	}
	if d, ok := t.timers.Remaining(t.timerID(seat)); ok {
		return d
	}
	return 0
}

// Pause 冻结所有宽限期计时
func (t *Tracker) Pause() {
	if t.paused {
		return
	}
	t.paused = true
	for seat, rec := range t.records {
		pending, remaining, ok := t.timers.Suspend(t.timerID(seat))
		if !ok {
			// 计时已触发但到期回调尚未处理，恢复后立即重新触发
			if !rec.TakenOver {
				t.suspended[seat] = task.NewTask(t.timerID(seat), t.roomCode, 0, t.expireTask(seat, rec.Version)).WithVersion(rec.Version)
			}
			continue
		}
		pending.Delay = remaining
		t.suspended[seat] = pending
	}
}

// Resume 按剩余时长恢复计时
func (t *Tracker) Resume() {
	if !t.paused {
		return
	}
	t.paused = false
	now := t.now()
	for seat, pending := range t.suspended {
		if rec, ok := t.records[seat]; ok {
			rec.Deadline = now.Add(pending.Delay)
			if err := t.timers.AddTask(pending); err != nil {
				t.logger.Error("failed to re-arm grace timer", "seat", seat, "error", err)
			}
		}
		delete(t.suspended, seat)
	}
}

// Close 取消所有计时
func (t *Tracker) Close() {
	for seat := range t.records {
		t.timers.RemoveTask(t.timerID(seat))
	}
	t.suspended = make(map[int]*task.Task)
}
