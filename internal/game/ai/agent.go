package ai

import (
	"context"

	"sudooom.im.werewolf/internal/game/core"
)

// Speech 同一轮中已完成的发言
type Speech struct {
	Seat    int    `yaml:"seat"`
	Content string `yaml:"content"`
}

// DecisionContext AI 决策所需的上下文，只包含该座位可见的信息
type DecisionContext struct {
	RoomCode      string
	Seat          int
	Name          string
	Role          core.Role
	Persona       Persona
	Day           int
	Phase         core.Phase
	Alive         []int
	Teammates     []int
	LegalActions  []core.ActionType
	LegalTargets  map[core.ActionType][]int
	Log           []string
	RoundSpeeches []Speech
	Notes         []string
}

// Decision 离散决策
type Decision struct {
	Type      core.ActionType `yaml:"action"`
	Target    int             `yaml:"target"`
	Reasoning string          `yaml:"reasoning"`
}

// Chunk 发言片段，Text 为增量文本；Err 非空表示流异常结束
type Chunk struct {
	Text string
	Err  error
}

// Agent AI 能力
type Agent interface {
	// Name 实现名称，用于日志
	Name() string

	// RequestAction 离散决策
	RequestAction(ctx context.Context, dc DecisionContext) (Decision, error)

	// RequestSpeech 流式发言，通道关闭表示结束
	RequestSpeech(ctx context.Context, dc DecisionContext) (<-chan Chunk, error)
}
