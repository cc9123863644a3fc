package classic

import (
	"fmt"
	"slices"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// Name 规则集名称
const Name = "classic"

// 动作
const (
	ActionKill    core.ActionType = "kill"
	ActionInspect core.ActionType = "inspect"
	ActionProtect core.ActionType = "protect"
	ActionVote    core.ActionType = "vote"
)

const memoryGuardLast = "guard_last"

// Rules 经典规则：夜晚狼人、预言家、守卫同时行动；白天按座位顺序发言；之后按座位顺序投票
type Rules struct {
	roles []core.Role // 指定身份，不洗牌
}

// Option 规则集选项
type Option func(*Rules)

// WithRoles 按座位顺序指定身份
func WithRoles(roles ...core.Role) Option {
	return func(r *Rules) { r.roles = roles }
}

// New 创建经典规则集
func New(opts ...Option) *Rules {
	r := &Rules{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name 规则集名称
func (r *Rules) Name() string { return Name }

// FirstPhase 开局进入夜晚
func (r *Rules) FirstPhase() core.Phase { return core.PhaseNight }

// NextPhase 夜晚 -> 讨论 -> 投票 -> 夜晚
func (r *Rules) NextPhase(state *core.GameState, completed core.Phase) core.Phase {
	switch completed {
	case core.PhaseNight:
		return core.PhaseDiscussion
	case core.PhaseDiscussion:
		return core.PhaseVote
	default:
		return core.PhaseNight
	}
}

// Plan 每个阶段只有一个步骤
func (r *Rules) Plan(state *core.GameState, phase core.Phase, step int) (core.StepPlan, bool) {
	if step > 0 {
		return core.StepPlan{}, false
	}
	switch phase {
	case core.PhaseNight:
		actors := nightActors(state)
		return core.StepPlan{Mode: core.StepConcurrent, Kind: core.TurnAction, Actors: actors}, true
	case core.PhaseDiscussion:
		n := len(state.Participants)
		start := 1
		if n > 0 && state.Day > 0 {
			start = (state.Day-1)%n + 1
		}
		return core.StepPlan{Mode: core.StepSequential, Kind: core.TurnSpeech, Start: start}, true
	case core.PhaseVote:
		return core.StepPlan{Mode: core.StepSequential, Kind: core.TurnVote}, true
	}
	return core.StepPlan{}, false
}

func nightActors(state *core.GameState) []int {
	actors := []int{}
	for _, p := range state.Participants {
		if !p.Alive {
			continue
		}
		switch p.Role {
		case RoleWerewolf, RoleSeer, RoleGuard:
			actors = append(actors, p.Seat)
		}
	}
	return actors
}

// Validate 校验动作
func (r *Rules) Validate(state *core.GameState, seat int, action core.Action) error {
	p := state.Participant(seat)
	if p == nil {
		return apperrors.ErrSeatNotFound
	}
	if action.Type == core.ActionPass {
		return nil
	}

	required, ok := actionPhase[action.Type]
	if !ok {
		return apperrors.ErrInvalidAction.WithDetail("unknown action %q", action.Type)
	}
	if state.Phase != required {
		return apperrors.ErrPhaseViolation.WithDetail("%s is not allowed during %s", action.Type, state.Phase)
	}
	if role, ok := actionRole[action.Type]; ok && p.Role != role {
		return apperrors.ErrInvalidAction.WithDetail("role %s cannot %s", p.Role, action.Type)
	}

	if action.Type == core.ActionSpeech {
		return nil
	}
	if action.Target == 0 {
		return apperrors.ErrInvalidTarget.WithDetail("%s requires a target", action.Type)
	}
	if !slices.Contains(r.LegalTargets(state, seat, action.Type), action.Target) {
		return apperrors.ErrInvalidTarget.WithDetail("seat %d cannot %s seat %d", seat, action.Type, action.Target)
	}
	return nil
}

var actionPhase = map[core.ActionType]core.Phase{
	core.ActionSpeech: core.PhaseDiscussion,
	ActionVote:        core.PhaseVote,
	ActionKill:        core.PhaseNight,
	ActionInspect:     core.PhaseNight,
	ActionProtect:     core.PhaseNight,
}

var actionRole = map[core.ActionType]core.Role{
	ActionKill:    RoleWerewolf,
	ActionInspect: RoleSeer,
	ActionProtect: RoleGuard,
}

// Audience 夜间动作只对本人可见，狼人刀人对全体狼人可见
func (r *Rules) Audience(state *core.GameState, seat int, action core.Action) []int {
	if state.Phase != core.PhaseNight {
		return nil
	}
	if action.Type == ActionKill {
		return state.SeatsWithRole(RoleWerewolf)
	}
	return []int{seat}
}

// LegalActions 座位当前可用的动作
func (r *Rules) LegalActions(state *core.GameState, seat int) []core.ActionType {
	p := state.Participant(seat)
	if p == nil || !p.Alive {
		return nil
	}
	switch state.Phase {
	case core.PhaseNight:
		switch p.Role {
		case RoleWerewolf:
			return []core.ActionType{ActionKill, core.ActionPass}
		case RoleSeer:
			return []core.ActionType{ActionInspect, core.ActionPass}
		case RoleGuard:
			return []core.ActionType{ActionProtect, core.ActionPass}
		}
		return []core.ActionType{core.ActionPass}
	case core.PhaseDiscussion:
		return []core.ActionType{core.ActionSpeech, core.ActionPass}
	case core.PhaseVote:
		return []core.ActionType{ActionVote, core.ActionPass}
	}
	return nil
}

// LegalTargets 动作的合法目标
func (r *Rules) LegalTargets(state *core.GameState, seat int, action core.ActionType) []int {
	var targets []int
	for _, p := range state.Participants {
		if !p.Alive {
			continue
		}
		switch action {
		case ActionKill:
			if p.Role == RoleWerewolf {
				continue
			}
		case ActionInspect, ActionVote:
			if p.Seat == seat {
				continue
			}
		case ActionProtect:
			if p.Seat == state.Memory[memoryGuardLast] {
				continue
			}
		default:
			continue
		}
		targets = append(targets, p.Seat)
	}
	return targets
}

// Resolve 阶段结算
func (r *Rules) Resolve(state *core.GameState, phase core.Phase) core.Resolution {
	switch phase {
	case core.PhaseNight:
		return r.resolveNight(state)
	case core.PhaseVote:
		return r.resolveVote(state)
	}
	return core.Resolution{}
}

func (r *Rules) resolveNight(state *core.GameState) core.Resolution {
	var res core.Resolution

	victim, _ := Tally(state.RecordsOf(ActionKill))

	protected := 0
	if recs := state.RecordsOf(ActionProtect); len(recs) > 0 {
		protected = recs[len(recs)-1].Action.Target
	}
	state.Memory[memoryGuardLast] = protected

	for _, rec := range state.RecordsOf(ActionInspect) {
		target := state.Participant(rec.Action.Target)
		if target == nil {
			continue
		}
		verdict := "not a werewolf"
		if target.Role == RoleWerewolf {
			verdict = "a werewolf"
		}
		res.Notes = append(res.Notes, core.Note{
			Seat:    rec.Seat,
			Kind:    string(ActionInspect),
			Target:  target.Seat,
			Content: fmt.Sprintf("seat %d is %s", target.Seat, verdict),
		})
	}

	if victim != 0 && victim != protected {
		res.Deaths = append(res.Deaths, core.Death{Seat: victim, Cause: "killed"})
	} else {
		res.Announcements = append(res.Announcements, "the night passed peacefully")
	}
	return res
}

func (r *Rules) resolveVote(state *core.GameState) core.Resolution {
	target, tied := Tally(state.RecordsOf(ActionVote))
	if target == 0 || tied {
		return core.Resolution{Announcements: []string{"no one was voted out"}}
	}
	return core.Resolution{Deaths: []core.Death{{Seat: target, Cause: "voted_out"}}}
}

// Tally 统计目标票数，返回得票最多的座位；并列时返回其中座位号最小者并标记 tied
func Tally(records []core.ActionRecord) (int, bool) {
	counts := make(map[int]int)
	for _, rec := range records {
		if rec.Action.Target != 0 {
			counts[rec.Action.Target]++
		}
	}
	best, bestCount, tied := 0, 0, false
	for seat, count := range counts {
		switch {
		case count > bestCount:
			best, bestCount, tied = seat, count, false
		case count == bestCount:
			tied = true
			if seat < best {
				best = seat
			}
		}
	}
	return best, tied
}

// CheckWinner 狼人全部出局则好人胜；狼人数不少于其他存活者则狼人胜
func (r *Rules) CheckWinner(state *core.GameState) (core.Outcome, bool) {
	wolves, others := 0, 0
	for _, p := range state.Participants {
		if !p.Alive {
			continue
		}
		if p.Role == RoleWerewolf {
			wolves++
		} else {
			others++
		}
	}
	switch {
	case wolves == 0:
		return core.Outcome{Winner: TeamVillage, Reason: "all werewolves eliminated"}, true
	case wolves >= others:
		return core.Outcome{Winner: TeamWerewolf, Reason: "werewolves reached parity"}, true
	}
	return core.Outcome{}, false
}
