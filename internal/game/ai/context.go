package ai

import (
	"slices"

	"sudooom.im.werewolf/internal/game/core"
)

// maxLogLines 提供给 AI 的最近日志行数
const maxLogLines = 40

// BuildContext 从状态机构造座位可见的决策上下文
func BuildContext(state *core.GameState, rules core.Ruleset, seat int) DecisionContext {
	p := state.Participant(seat)
	dc := DecisionContext{
		RoomCode:     state.RoomCode,
		Seat:         seat,
		Day:          state.Day,
		Phase:        state.Phase,
		Alive:        state.AliveSeats(),
		LegalTargets: make(map[core.ActionType][]int),
	}
	if p == nil {
		return dc
	}
	dc.Name = p.Name
	dc.Role = p.Role
	dc.Persona = ParsePersona(p.Persona)
	dc.Teammates = rules.Teammates(state, seat)

	dc.LegalActions = rules.LegalActions(state, seat)
	for _, a := range dc.LegalActions {
		if targets := rules.LegalTargets(state, seat, a); len(targets) > 0 {
			dc.LegalTargets[a] = targets
		}
	}

	visible := state.VisibleLog(seat)
	if len(visible) > maxLogLines {
		visible = visible[len(visible)-maxLogLines:]
	}
	for _, e := range visible {
		if !e.Closed {
			continue
		}
		if e.Type == core.EntryPrivate && e.Seat == seat {
			dc.Notes = append(dc.Notes, e.Content)
			continue
		}
		dc.Log = append(dc.Log, e.Content)
	}

	// 本轮已完成的发言，包括人类座位
	for _, e := range state.RoundSpeeches() {
		dc.RoundSpeeches = append(dc.RoundSpeeches, Speech{Seat: e.Seat, Content: e.Content})
	}
	return dc
}

// Allows 决策是否在合法动作与目标之内
func (dc DecisionContext) Allows(d Decision) bool {
	if !slices.Contains(dc.LegalActions, d.Type) {
		return false
	}
	targets, needsTarget := dc.LegalTargets[d.Type]
	if !needsTarget {
		return d.Target == 0
	}
	return slices.Contains(targets, d.Target)
}
