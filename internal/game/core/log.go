package core

import (
	"maps"
	"slices"
	"time"

	"sudooom.im.werewolf/pkg/proto"
)

// EntryType 日志条目类型
type EntryType string

const (
	EntrySpeech   EntryType = "speech"
	EntryAction   EntryType = "action"
	EntryPhase    EntryType = "phase"
	EntryDeath    EntryType = "death"
	EntryPrivate  EntryType = "private"
	EntryPresence EntryType = "presence"
	EntryAIError  EntryType = "ai_error"
	EntrySystem   EntryType = "system"
	EntryResult   EntryType = "result"
)

// Visibility 可见性
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
)

// Detail 日志查询详细程度
type Detail string

const (
	DetailBasic    Detail = "basic"
	DetailDetailed Detail = "detailed"
)

// ParseDetail 解析详细程度，未知取值按 basic 处理
func ParseDetail(s string) Detail {
	if Detail(s) == DetailDetailed {
		return DetailDetailed
	}
	return DetailBasic
}

// 标记
const (
	MarkerTimeout  = "timeout"
	MarkerFallback = "fallback"
	MarkerAI       = "ai"
	MarkerError    = "error"
)

// LogEntry 日志条目
// 流式条目创建时 Closed=false，只能追加内容，关闭后不再修改
type LogEntry struct {
	ID         int64             `json:"id"`
	Seq        int64             `json:"seq"`
	RoomCode   string            `json:"roomCode"`
	Type       EntryType         `json:"type"`
	Seat       int               `json:"seat,omitempty"`
	Day        int               `json:"day"`
	Phase      Phase             `json:"phase"`
	Content    string            `json:"content"`
	Closed     bool              `json:"closed"`
	Visibility Visibility        `json:"visibility"`
	Audience   []int             `json:"audience,omitempty"`
	Markers    map[string]string `json:"markers,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// VisibleTo 座位是否可见
func (e *LogEntry) VisibleTo(seat int) bool {
	switch e.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityPrivate:
		return slices.Contains(e.Audience, seat)
	default:
		return false
	}
}

// Clone 深拷贝
func (e LogEntry) Clone() LogEntry {
	e.Audience = slices.Clone(e.Audience)
	e.Markers = maps.Clone(e.Markers)
	return e
}

// ToItem 转为对外形式
func (e *LogEntry) ToItem(withMarkers bool) proto.LogItem {
	item := proto.LogItem{
		ID:         e.ID,
		Seq:        e.Seq,
		Type:       string(e.Type),
		Seat:       e.Seat,
		Day:        e.Day,
		Phase:      string(e.Phase),
		Content:    e.Content,
		Closed:     e.Closed,
		Visibility: string(e.Visibility),
		CreatedAt:  e.CreatedAt.UnixMilli(),
	}
	if withMarkers && len(e.Markers) > 0 {
		item.Markers = maps.Clone(e.Markers)
	}
	return item
}

// FilterLog 按详细程度过滤
// basic 只返回公开条目且去掉内部标记；detailed 额外包含内部条目，游戏结束后再包含私有条目
func FilterLog(entries []LogEntry, detail Detail, ended bool) []proto.LogItem {
	items := make([]proto.LogItem, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		switch detail {
		case DetailDetailed:
			if e.Visibility == VisibilityPrivate && !ended {
				continue
			}
			items = append(items, e.ToItem(true))
		default:
			if e.Visibility != VisibilityPublic {
				continue
			}
			items = append(items, e.ToItem(false))
		}
	}
	return items
}
