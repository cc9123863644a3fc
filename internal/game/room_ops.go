package game

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"sudooom.im.werewolf/internal/broadcast"
	"sudooom.im.werewolf/internal/game/ai"
	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/internal/game/presence"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// Session 一次加入房间的结果
type Session struct {
	Seat     int
	Sub      *broadcast.Subscription
	Snapshot proto.Snapshot
}

// Start 开局；大厅中已加入的用户按 UserID 绑定到座位
func (r *Room) Start(ctx context.Context, participants []core.Participant, seed uint64) error {
	return r.exec(ctx, func() error {
		seated := slices.Clone(participants)
		for i := range seated {
			if seated[i].Kind == "" {
				seated[i].Kind = core.KindHuman
			}
			if seated[i].Kind == core.KindAI && seated[i].Persona == "" {
				seated[i].Persona = string(ai.RandomPersona(r.rng))
			}
		}

		events, err := r.engine.Start(seated, seed)
		if err != nil {
			return err
		}
		for _, p := range r.engine.State().Participants {
			if !p.IsAI() {
				r.presence.Track(p.Seat)
			}
			if sub, ok := r.lobby[p.UserID]; ok && p.UserID != "" {
				r.hub.Assign(sub, p.Seat)
				delete(r.lobby, p.UserID)
			}
		}
		r.emit(events)
		r.logger.Info("Game started", "seats", len(seated), "ruleset", r.engine.Rules().Name())
		return nil
	})
}

// SubmitAction 人类座位提交动作
func (r *Room) SubmitAction(ctx context.Context, seat int, payload proto.ActionPayload) error {
	if seat <= 0 {
		return apperrors.ErrNotSeated
	}
	action := core.Action{Type: core.ActionType(payload.Type), Target: payload.Target}
	if action.Type == "" {
		return apperrors.ErrInvalidParams.WithDetail("action type is required")
	}
	if action.Type == core.ActionSpeech {
		return apperrors.ErrInvalidParams.WithDetail("use player-speech for speech")
	}
	return r.applyHuman(ctx, seat, action)
}

// SubmitSpeech 人类座位发言
func (r *Room) SubmitSpeech(ctx context.Context, seat int, content string) error {
	if seat <= 0 {
		return apperrors.ErrNotSeated
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return apperrors.ErrInvalidParams.WithDetail("speech content is empty")
	}
	return r.applyHuman(ctx, seat, core.Action{Type: core.ActionSpeech, Content: content})
}

func (r *Room) applyHuman(ctx context.Context, seat int, action core.Action) error {
	return r.exec(ctx, func() error {
		if p := r.engine.Participant(seat); p != nil && p.IsAI() {
			return apperrors.ErrSeatReplaced.WithDetail("seat %d", seat)
		}
		events, err := r.engine.ApplyAction(seat, action)
		if err != nil {
			return err
		}
		r.emit(events)
		return nil
	})
}

// Pause 暂停：冻结回合计时与宽限期计时，进行中的 AI 请求不取消
func (r *Room) Pause(ctx context.Context) error {
	return r.exec(ctx, func() error {
		events, err := r.engine.Pause(r.turnRemaining())
		if err != nil {
			return err
		}
		r.suspendTurn()
		r.presence.Pause()
		r.emit(events)
		return nil
	})
}

// Resume 恢复：计时按暂停时的剩余时长继续，暂停期间完成的 AI 结果随后提交
func (r *Room) Resume(ctx context.Context) error {
	return r.exec(ctx, func() error {
		events, err := r.engine.Resume(r.turnRemaining())
		if err != nil {
			return err
		}
		r.resumeTurn()
		r.presence.Resume()
		r.emit(events)
		r.releaseHeld()
		return nil
	})
}

// Stop 强制结束并关闭房间
func (r *Room) Stop(ctx context.Context, reason string) error {
	err := r.exec(ctx, func() error {
		r.emit(r.engine.Stop(reason))
		r.hub.Publish(r.ctx, proto.EventError, ErrorPayload(apperrors.ErrRoomTerminated.WithDetail("%s", reason)), nil)
		return nil
	})
	r.Close()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Join 加入房间：座位上的用户重连并获得快照，其余用户以旁观者身份订阅
func (r *Room) Join(ctx context.Context, userID string) (*Session, error) {
	var sess *Session
	err := r.exec(ctx, func() error {
		seat := 0
		switch r.engine.Phase() {
		case core.PhaseLobby:
			if old := r.lobby[userID]; old != nil {
				r.hub.Unsubscribe(old)
			}
		default:
			seat = r.seatOf(userID)
		}

		if err := r.reconnectSeat(seat); err != nil {
			return err
		}

		sub := r.hub.Subscribe(seat)
		if r.engine.Phase() == core.PhaseLobby && userID != "" {
			r.lobby[userID] = sub
		}
		snap := r.engine.View().Snapshot(seat, r.cfg.RecentLog, r.now())
		env := proto.NewEnvelope(proto.EventSnapshot, r.code, snap)
		env.Seq = r.hub.Seq()
		r.hub.Deliver(sub, env)

		sess = &Session{Seat: seat, Sub: sub, Snapshot: snap}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// JoinRemote 经其他接入节点加入：只恢复在线状态并返回快照
// 事件经房间事件 subject 下发，不建立本地订阅
func (r *Room) JoinRemote(ctx context.Context, userID string) (proto.Snapshot, error) {
	var snap proto.Snapshot
	err := r.exec(ctx, func() error {
		seat := 0
		if r.engine.Phase() != core.PhaseLobby {
			seat = r.seatOf(userID)
		}
		if err := r.reconnectSeat(seat); err != nil {
			return err
		}
		snap = r.engine.View().Snapshot(seat, r.cfg.RecentLog, r.now())
		return nil
	})
	return snap, err
}

// LeaveRemote 经其他接入节点离开或断线
func (r *Room) LeaveRemote(ctx context.Context, userID string) error {
	return r.exec(ctx, func() error {
		r.disconnectSeat(r.seatOf(userID))
		return nil
	})
}

func (r *Room) reconnectSeat(seat int) error {
	if seat <= 0 || r.engine.Phase() == core.PhaseEnded {
		return nil
	}
	recovered, err := r.presence.Reconnect(seat)
	if err != nil {
		return err
	}
	if recovered {
		r.onReconnected(seat)
	}
	return nil
}

// onReconnected 重连只广播通知，不修改游戏日志
// 回合计时照常进行；只有计时已在断线期间触发时才重新计时
func (r *Room) onReconnected(seat int) {
	p := r.engine.Participant(seat)
	r.emit([]core.Event{{
		Name: proto.EventPlayerReconnected,
		Data: proto.PresenceChanged{Seat: seat, Name: p.Name},
	}})
	r.cachePresence(seat, presence.StatusConnected)
	if r.turn.fired && slices.Contains(r.engine.Due(), seat) {
		r.rearmTurn()
	}
}

// Leave 订阅断开；被同座位新连接替换的订阅不视为断线
func (r *Room) Leave(ctx context.Context, sub *broadcast.Subscription) error {
	return r.exec(ctx, func() error {
		r.hub.Unsubscribe(sub)
		if errors.Is(sub.Reason(), broadcast.ErrReplaced) {
			return nil
		}
		for userID, s := range r.lobby {
			if s == sub {
				delete(r.lobby, userID)
			}
		}

		r.disconnectSeat(sub.Seat())
		return nil
	})
}

// disconnectSeat 在局中的存活人类座位进入宽限期
func (r *Room) disconnectSeat(seat int) {
	p := r.engine.Participant(seat)
	if p == nil || p.IsAI() || !p.Alive {
		return
	}
	switch r.engine.Phase() {
	case core.PhaseLobby, core.PhaseEnded:
		return
	}
	if _, ok := r.presence.Disconnect(seat); ok {
		r.notifyDisconnect(seat)
	}
}

func (r *Room) seatOf(userID string) int {
	if userID == "" {
		return 0
	}
	for _, p := range r.engine.State().Participants {
		if p.UserID == userID {
			return p.Seat
		}
	}
	return 0
}

// Snapshot 座位视角的快照，可并发调用
func (r *Room) Snapshot(seat int) proto.Snapshot {
	return r.View().Snapshot(seat, r.cfg.RecentLog, r.now())
}

// Log 按详细程度返回日志，可并发调用
func (r *Room) Log(detail core.Detail) []proto.LogItem {
	v := r.View()
	return core.FilterLog(v.Entries(), detail, v.Ended())
}

// SeatOf 用户所在座位，可并发调用
func (r *Room) SeatOf(userID string) int {
	return r.View().SeatOf(userID)
}

// TurnRemaining 当前回合剩余时长
func (r *Room) TurnRemaining(ctx context.Context) (time.Duration, error) {
	var d time.Duration
	err := r.exec(ctx, func() error {
		d = r.turnRemaining()
		return nil
	})
	return d, err
}

// GraceRemaining 座位断线宽限期剩余时长，在线时为 0
func (r *Room) GraceRemaining(ctx context.Context, seat int) (time.Duration, error) {
	var d time.Duration
	err := r.exec(ctx, func() error {
		if r.presence.Status(seat) == presence.StatusDisconnected {
			d = r.presence.Remaining(seat)
		}
		return nil
	})
	return d, err
}

// Presence 座位在线状态
func (r *Room) Presence(ctx context.Context, seat int) (presence.Status, error) {
	var s presence.Status
	err := r.exec(ctx, func() error {
		s = r.presence.Status(seat)
		return nil
	})
	return s, err
}
