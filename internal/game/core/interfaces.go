package core

import "math/rand/v2"

// Ruleset 规则集
// 引擎负责阶段流转、回合推进、校验顺序与日志；规则集负责身份、步骤安排、合法性、结算与胜负
type Ruleset interface {
	// Name 规则集名称
	Name() string

	// AssignRoles 为 count 个座位分配身份，下标 i 对应座位 i+1
	AssignRoles(count int, rng *rand.Rand) ([]Role, error)

	// Teammates 开局时告知该座位的同伴
	Teammates(state *GameState, seat int) []int

	// FirstPhase 开局后的第一个阶段
	FirstPhase() Phase

	// NextPhase 阶段结束后的下一个阶段
	NextPhase(state *GameState, completed Phase) Phase

	// Plan 阶段内第 step 个步骤，返回 false 表示阶段内没有更多步骤
	Plan(state *GameState, phase Phase, step int) (StepPlan, bool)

	// Validate 校验动作对身份与阶段是否合法
	Validate(state *GameState, seat int, action Action) error

	// Audience 动作可见范围，nil 表示公开
	Audience(state *GameState, seat int, action Action) []int

	// Resolve 阶段结算
	Resolve(state *GameState, phase Phase) Resolution

	// CheckWinner 胜负判定
	CheckWinner(state *GameState) (Outcome, bool)

	// LegalActions 座位当前可用的动作
	LegalActions(state *GameState, seat int) []ActionType

	// LegalTargets 动作的合法目标
	LegalTargets(state *GameState, seat int, action ActionType) []int
}
