package core

import (
	"slices"
	"time"
)

// Phase 游戏阶段
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseNight      Phase = "night"
	PhaseDiscussion Phase = "day_discussion"
	PhaseVote       Phase = "vote"
	PhasePaused     Phase = "paused"
	PhaseEnded      Phase = "ended"
)

// Kind 座位控制方
type Kind string

const (
	KindHuman Kind = "human"
	KindAI    Kind = "ai"
)

// Role 身份，由规则集定义具体取值
type Role string

// ActionType 动作类型
type ActionType string

// 通用动作，其余由规则集定义
const (
	ActionPass   ActionType = "pass"
	ActionSpeech ActionType = "speech"
)

// Participant 座位
type Participant struct {
	Seat       int        `json:"seat"`
	Name       string     `json:"name"`
	UserID     string     `json:"userId,omitempty"`
	Kind       Kind       `json:"kind"`
	Alive      bool       `json:"alive"`
	Role       Role       `json:"role"`
	Persona    string     `json:"persona,omitempty"`
	ReplacedAt *time.Time `json:"replacedAt,omitempty"`
}

// IsAI 是否由 AI 控制
func (p *Participant) IsAI() bool {
	return p.Kind == KindAI
}

// Action 玩家动作
type Action struct {
	Type      ActionType `json:"type"`
	Target    int        `json:"target,omitempty"`
	Content   string     `json:"content,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	// EntryID 非零时表示该发言已经以流式条目写入日志
	EntryID       int64  `json:"entryId,omitempty"`
	Timeout       bool   `json:"timeout,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	FallbackCause string `json:"fallbackCause,omitempty"`
}

// ActionRecord 已提交的动作，阶段结束时由规则集汇总
type ActionRecord struct {
	Seat   int       `json:"seat"`
	Action Action    `json:"action"`
	Day    int       `json:"day"`
	Phase  Phase     `json:"phase"`
	Step   int       `json:"step"`
	At     time.Time `json:"at"`
}

// StepMode 步骤模式
type StepMode string

const (
	StepSequential StepMode = "sequential"
	StepConcurrent StepMode = "concurrent"
)

// TurnKind 回合类型，决定超时时长
type TurnKind string

const (
	TurnSpeech TurnKind = "speech"
	TurnAction TurnKind = "action"
	TurnVote   TurnKind = "vote"
)

// StepPlan 阶段内一个步骤的安排
type StepPlan struct {
	Mode StepMode
	Kind TurnKind
	// Actors 参与该步骤的座位，为空表示全部存活座位
	Actors []int
	// Start 顺序步骤的起始座位，为 0 时从最小存活座位开始
	Start int
}

// Death 死亡
type Death struct {
	Seat  int
	Cause string
}

// Note 私有通知
type Note struct {
	Seat    int
	Kind    string
	Target  int
	Content string
}

// Resolution 阶段结算
type Resolution struct {
	Deaths        []Death
	Notes         []Note
	Announcements []string
}

// Outcome 胜负结果
type Outcome struct {
	Winner    string `json:"winner"`
	Reason    string `json:"reason"`
	Survivors []int  `json:"survivors"`
}

// Event 下行事件，Audience 为空表示全房间
type Event struct {
	Name     string
	Data     any
	Audience []int
}

// Public 是否对全房间可见
func (e Event) Public() bool {
	return e.Audience == nil
}

// VisibleTo 座位是否可见，seat 为 0 表示旁观者
func (e Event) VisibleTo(seat int) bool {
	return e.Audience == nil || slices.Contains(e.Audience, seat)
}
