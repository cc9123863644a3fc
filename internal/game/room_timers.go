package game

import (
	"context"
	"fmt"
	"slices"
	"time"

	"sudooom.im.werewolf/internal/game/ai"
	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/internal/game/presence"
	"sudooom.im.werewolf/internal/task"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// turnTimer 当前回合的计时状态
// key 标识回合 (阶段序号/步骤/当前座位)，并发步骤内有人提交不重置计时
type turnTimer struct {
	key       string
	fired     bool
	suspended *task.Task
}

func (r *Room) turnTimerID() string {
	return "turn:" + r.code
}

func (r *Room) turnKey() string {
	s := r.engine.State()
	return fmt.Sprintf("%d/%d/%d", s.PhaseSeq, s.Step, s.Cursor.Current)
}

// armTurn 回合变化时重新计时
func (r *Room) armTurn() {
	if len(r.engine.Due()) == 0 {
		r.clearTurn()
		return
	}
	key := r.turnKey()
	if key == r.turn.key {
		return
	}
	r.startTurnTimer(key)
}

func (r *Room) startTurnTimer(key string) {
	timeout := r.cfg.TurnTimeout(r.engine.TurnKind())
	r.turn = turnTimer{key: key}
	t := task.NewTask(r.turnTimerID(), r.code, timeout, r.turnTask(key)).WithVersion(r.engine.TurnVersion())
	if err := r.deps.Timers.AddTask(t); err != nil {
		r.logger.Error("Failed to arm turn timer", "key", key, "error", err)
	}
}

func (r *Room) turnTask(key string) task.TaskFunc {
	return func(ctx context.Context, target string, metadata map[string]any) error {
		r.post(func() { r.onTurnTimeout(key) })
		return nil
	}
}

func (r *Room) clearTurn() {
	if r.turn.key == "" && r.turn.suspended == nil {
		return
	}
	r.deps.Timers.RemoveTask(r.turnTimerID())
	r.turn = turnTimer{}
}

// turnRemaining 当前回合剩余时长
func (r *Room) turnRemaining() time.Duration {
	if r.turn.suspended != nil {
		return r.turn.suspended.Delay
	}
	if d, ok := r.deps.Timers.Remaining(r.turnTimerID()); ok {
		return d
	}
	return 0
}

// suspendTurn 暂停时冻结回合计时
func (r *Room) suspendTurn() {
	if r.turn.key == "" || r.turn.fired {
		return
	}
	pending, remaining, ok := r.deps.Timers.Suspend(r.turnTimerID())
	if !ok {
		// 已触发，超时处理会在暂停期间执行并转为挂起
		return
	}
	pending.Delay = remaining
	r.turn.suspended = pending
}

// resumeTurn 按剩余时长恢复回合计时
func (r *Room) resumeTurn() time.Duration {
	pending := r.turn.suspended
	if pending == nil {
		return 0
	}
	r.turn.suspended = nil
	if err := r.deps.Timers.AddTask(pending); err != nil {
		r.logger.Error("Failed to resume turn timer", "error", err)
	}
	return pending.Delay
}

// rearmTurn 计时已触发的回合在人类座位重连后重新获得完整的回合时长
func (r *Room) rearmTurn() {
	key := r.turnKey()
	if r.engine.Phase() == core.PhasePaused {
		if r.turn.key != key {
			return
		}
		timeout := r.cfg.TurnTimeout(r.engine.TurnKind())
		r.turn.fired = false
		r.turn.suspended = task.NewTask(r.turnTimerID(), r.code, timeout, r.turnTask(key)).WithVersion(r.engine.TurnVersion())
		return
	}
	r.startTurnTimer(key)
}

// onTurnTimeout 回合超时：AI 座位使用兜底动作，在线的人类座位自动弃权
// 断线的人类座位保持待行动，等待重连或宽限期到期后由 AI 接管
func (r *Room) onTurnTimeout(key string) {
	if key != r.turn.key {
		return
	}
	switch r.engine.Phase() {
	case core.PhaseEnded, core.PhaseLobby:
		return
	case core.PhasePaused:
		r.turn.suspended = task.NewTask(r.turnTimerID(), r.code, 0, r.turnTask(key)).WithVersion(r.engine.TurnVersion())
		return
	}
	r.turn.fired = true

	for _, seat := range slices.Clone(r.engine.Due()) {
		p := r.engine.Participant(seat)
		if p == nil || !slices.Contains(r.engine.Due(), seat) {
			continue
		}
		switch {
		case p.IsAI() && r.job != nil && r.job.seat == seat:
			r.logger.Warn("AI turn timed out", "seat", seat)
			r.abortJob()
		case p.IsAI():
			dc := ai.BuildContext(r.engine.State(), r.engine.Rules(), seat)
			action := r.deps.Orchestrator.Fallback(dc, apperrors.ErrAITimeout)
			action.Timeout = true
			r.noteAIError(seat, apperrors.ErrAITimeout)
			r.commit(seat, action)
		case r.presence.IsConnected(seat):
			r.logger.Info("Turn timed out, auto pass", "seat", seat, "key", key)
			r.commit(seat, core.Action{Type: core.ActionPass, Timeout: true})
		default:
			r.logger.Info("Turn timed out for disconnected seat", "seat", seat)
		}
	}
}

// onGraceTimer 宽限期计时回调，在计时协程中执行
func (r *Room) onGraceTimer(seat int, version int64) {
	r.post(func() { r.onGraceExpired(seat, version) })
}

// onGraceExpired 宽限期到期：座位转为 AI 控制
func (r *Room) onGraceExpired(seat int, version int64) {
	if r.engine.Phase() == core.PhaseEnded {
		return
	}
	if !r.presence.Expire(seat, version) {
		return
	}
	persona := ai.RandomPersona(r.rng)
	events, err := r.engine.ConvertToAI(seat, string(persona))
	if err != nil {
		r.logger.Error("Failed to hand seat to ai", "seat", seat, "error", err)
		return
	}
	r.emit(events)
	r.cachePresence(seat, presence.StatusReplaced)
	r.logger.Info("Seat taken over by ai", "seat", seat, "persona", persona)
}

// notifyDisconnect 广播断线通知
func (r *Room) notifyDisconnect(seat int) {
	p := r.engine.Participant(seat)
	name := ""
	if p != nil {
		name = p.Name
	}
	r.engine.Note(core.LogEntry{
		Type:    core.EntryPresence,
		Seat:    seat,
		Content: fmt.Sprintf("seat %d disconnected", seat),
	})
	r.emit([]core.Event{{
		Name: proto.EventPlayerDisconnected,
		Data: proto.PresenceChanged{Seat: seat, Name: name, GraceRemainingMs: r.presence.Remaining(seat).Milliseconds()},
	}})
	r.cachePresence(seat, presence.StatusDisconnected)
}
