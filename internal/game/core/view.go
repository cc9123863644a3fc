package core

import (
	"slices"
	"time"

	"sudooom.im.werewolf/pkg/proto"
)

// View 某一时刻的只读副本，可以在顺序执行协程之外并发读取
type View struct {
	RoomCode     string
	Ruleset      string
	Phase        Phase
	ResumePhase  Phase
	Day          int
	Step         int
	Cursor       TurnCursor
	Participants []Participant
	Log          []LogEntry // 已关闭条目，视图之间共享，只读
	Outcome      *Outcome
	Version      int64
	StartedAt    time.Time

	open []LogEntry
}

// View 生成只读副本
func (e *Engine) View() *View {
	s := e.state
	v := &View{
		RoomCode:     s.RoomCode,
		Ruleset:      s.Ruleset,
		Phase:        s.Phase,
		ResumePhase:  s.ResumePhase,
		Day:          s.Day,
		Step:         s.Step,
		Cursor:       s.Cursor.Clone(),
		Participants: make([]Participant, len(s.Participants)),
		Log:          e.freezeLog(),
		Version:      s.Version,
		StartedAt:    s.StartedAt,
	}
	for i, p := range s.Participants {
		v.Participants[i] = *p
	}
	for i := len(v.Log); i < len(s.Log); i++ {
		v.open = append(v.open, s.Log[i].Clone())
	}
	if s.Outcome != nil {
		o := *s.Outcome
		v.Outcome = &o
	}
	return v
}

// freezeLog 把新关闭的前缀条目追加到共享副本
// 条目关闭后不再修改，每步只复制新增部分
func (e *Engine) freezeLog() []LogEntry {
	log := e.state.Log
	for i := len(e.frozen); i < len(log) && log[i].Closed; i++ {
		e.frozen = append(e.frozen, log[i].Clone())
	}
	n := len(e.frozen)
	return e.frozen[:n:n]
}

// Entries 完整日志，包括仍在流式输出的条目
func (v *View) Entries() []LogEntry {
	if len(v.open) == 0 {
		return v.Log
	}
	return append(slices.Clip(v.Log), v.open...)
}

// Participant 按座位号获取
func (v *View) Participant(seat int) *Participant {
	if seat < 1 || seat > len(v.Participants) {
		return nil
	}
	return &v.Participants[seat-1]
}

// SeatOf 按用户 ID 查找座位，找不到返回 0
func (v *View) SeatOf(userID string) int {
	if userID == "" {
		return 0
	}
	for _, p := range v.Participants {
		if p.UserID == userID {
			return p.Seat
		}
	}
	return 0
}

// Ended 是否已结束
func (v *View) Ended() bool {
	return v.Phase == PhaseEnded
}

// Snapshot 生成重连快照：阶段、存活名单、自己的身份、最近 recent 条公开日志、当前发言者
func (v *View) Snapshot(seat, recent int, now time.Time) proto.Snapshot {
	snap := proto.Snapshot{
		RoomCode:   v.RoomCode,
		Phase:      string(v.Phase),
		Day:        v.Day,
		TurnNumber: v.Cursor.Version,
		Version:    v.Version,
		OwnSeat:    seat,
		TakenAt:    now.UnixMilli(),
	}
	if v.Phase == PhasePaused {
		snap.ResumePhase = string(v.ResumePhase)
	}
	if v.Phase != PhaseLobby && v.Phase != PhaseEnded {
		phase := v.Phase
		if phase == PhasePaused {
			phase = v.ResumePhase
		}
		snap.Turn = turnInfo(phase, v.Day, v.Step, v.Cursor, seat)
	} else {
		snap.Turn = proto.TurnInfo{Phase: string(v.Phase), Day: v.Day}
	}

	ended := v.Phase == PhaseEnded
	snap.Seats = make([]proto.SeatInfo, 0, len(v.Participants))
	for _, p := range v.Participants {
		info := proto.SeatInfo{Seat: p.Seat, Name: p.Name, Kind: string(p.Kind), Alive: p.Alive}
		if ended || !p.Alive || p.Seat == seat {
			info.Role = string(p.Role)
		}
		snap.Seats = append(snap.Seats, info)
	}
	if p := v.Participant(seat); p != nil {
		snap.OwnRole = string(p.Role)
	}
	if v.Outcome != nil {
		snap.Winner = v.Outcome.Winner
	}

	var public []proto.LogItem
	log := v.Entries()
	for i := len(log) - 1; i >= 0 && len(public) < recent; i-- {
		if log[i].Visibility == VisibilityPublic {
			public = append(public, log[i].ToItem(false))
		}
	}
	for i, j := 0, len(public)-1; i < j; i, j = i+1, j-1 {
		public[i], public[j] = public[j], public[i]
	}
	snap.RecentLog = public
	if snap.RecentLog == nil {
		snap.RecentLog = []proto.LogItem{}
	}
	return snap
}
