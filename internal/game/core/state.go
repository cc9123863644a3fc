package core

import (
	"slices"
	"time"
)

// GameState 游戏状态，只由引擎修改
type GameState struct {
	RoomCode    string
	Ruleset     string
	Phase       Phase
	ResumePhase Phase
	PhaseSeq    int64
	Day         int
	Step        int

	Participants []*Participant // 下标为 seat-1
	Cursor       TurnCursor
	Records      []ActionRecord // 当前阶段已提交的动作
	Log          []LogEntry
	Outcome      *Outcome

	// Memory 规则集跨阶段的记忆，例如守卫上一晚守护的座位
	Memory map[string]int

	StartedAt time.Time
	EndedAt   time.Time
	Version   int64
}

// NewGameState 创建游戏状态
func NewGameState(roomCode, ruleset string) *GameState {
	return &GameState{
		RoomCode: roomCode,
		Ruleset:  ruleset,
		Phase:    PhaseLobby,
		Memory:   make(map[string]int),
	}
}

// Participant 按座位号获取
func (s *GameState) Participant(seat int) *Participant {
	if seat < 1 || seat > len(s.Participants) {
		return nil
	}
	return s.Participants[seat-1]
}

// IsAlive 座位是否存活
func (s *GameState) IsAlive(seat int) bool {
	p := s.Participant(seat)
	return p != nil && p.Alive
}

// AliveSeats 存活座位，升序
func (s *GameState) AliveSeats() []int {
	seats := make([]int, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Alive {
			seats = append(seats, p.Seat)
		}
	}
	return seats
}

// SeatsWithRole 指定身份的存活座位
func (s *GameState) SeatsWithRole(role Role) []int {
	var seats []int
	for _, p := range s.Participants {
		if p.Alive && p.Role == role {
			seats = append(seats, p.Seat)
		}
	}
	return seats
}

// RecordsOf 当前阶段某类动作的记录
func (s *GameState) RecordsOf(action ActionType) []ActionRecord {
	var out []ActionRecord
	for _, r := range s.Records {
		if r.Action.Type == action {
			out = append(out, r)
		}
	}
	return out
}

// RoundSpeeches 当天讨论中已关闭的发言
func (s *GameState) RoundSpeeches() []LogEntry {
	var out []LogEntry
	for _, e := range s.Log {
		if e.Type == EntrySpeech && e.Day == s.Day && e.Closed {
			out = append(out, e)
		}
	}
	return out
}

// VisibleLog 座位可见的日志
func (s *GameState) VisibleLog(seat int) []LogEntry {
	var out []LogEntry
	for i := range s.Log {
		if s.Log[i].VisibleTo(seat) {
			out = append(out, s.Log[i])
		}
	}
	return out
}

// NextAliveSeat 从 after 之后按座位号升序寻找下一个候选座位，越过最大座位后回绕
// candidates 不需要有序；没有候选时返回 0
func NextAliveSeat(after int, candidates []int) int {
	if len(candidates) == 0 {
		return 0
	}
	sorted := slices.Clone(candidates)
	slices.Sort(sorted)
	for _, seat := range sorted {
		if seat > after {
			return seat
		}
	}
	return sorted[0]
}
