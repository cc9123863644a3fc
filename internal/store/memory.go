package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// MemoryLog 进程内日志存储，未配置数据库时使用
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[string][]core.LogEntry
	seen    map[int64]struct{}
	results map[string]GameRecord
}

// NewMemoryLog 创建内存存储
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: make(map[string][]core.LogEntry),
		seen:    make(map[int64]struct{}),
		results: make(map[string]GameRecord),
	}
}

// Append 追加条目
func (m *MemoryLog) Append(ctx context.Context, entries []core.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if !e.Closed {
			return apperrors.ErrInvalidParams.WithDetail("entry %d is still open", e.ID)
		}
		if _, ok := m.seen[e.ID]; ok {
			continue
		}
		m.seen[e.ID] = struct{}{}
		m.entries[e.RoomCode] = append(m.entries[e.RoomCode], e.Clone())
	}
	return nil
}

// List 按序号返回房间全部条目
func (m *MemoryLog) List(ctx context.Context, roomCode string) ([]core.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.entries[roomCode])
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// SaveResult 保存结算
func (m *MemoryLog) SaveResult(ctx context.Context, record GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[record.RoomCode] = record
	return nil
}

// Result 读取结算
func (m *MemoryLog) Result(roomCode string) (GameRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[roomCode]
	return r, ok
}
