package core

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"time"

	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// maxSettleRounds 防止规则集返回的步骤全为空时死循环
const maxSettleRounds = 64

// Engine 游戏状态机
// 非并发安全，由房间的顺序执行协程独占调用
type Engine struct {
	state  *GameState
	rules  Ruleset
	now    func() time.Time
	nextID func() int64
	logger *slog.Logger
	sealed []LogEntry
	seq    int64

	// frozen 已关闭日志条目的副本，只追加，各视图共享
	frozen []LogEntry
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator 设置日志条目 ID 生成器
func WithIDGenerator(fn func() int64) Option {
	return func(e *Engine) { e.nextID = fn }
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine 创建状态机
func NewEngine(roomCode string, rules Ruleset, opts ...Option) *Engine {
	e := &Engine{
		state:  NewGameState(roomCode, rules.Name()),
		rules:  rules,
		now:    time.Now,
		logger: slog.Default().With("component", "Engine", "roomCode", roomCode),
	}
	var counter int64
	e.nextID = func() int64 {
		counter++
		return counter
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State 当前状态，只能在顺序执行协程中读取
func (e *Engine) State() *GameState { return e.state }

// Rules 规则集
func (e *Engine) Rules() Ruleset { return e.rules }

// Phase 当前阶段
func (e *Engine) Phase() Phase { return e.state.Phase }

// Due 当前需要行动的座位
func (e *Engine) Due() []int {
	switch e.state.Phase {
	case PhaseLobby, PhaseEnded:
		return nil
	}
	return e.state.Cursor.Due()
}

// TurnVersion 回合版本
func (e *Engine) TurnVersion() int64 { return e.state.Cursor.Version }

// TurnKind 当前回合类型
func (e *Engine) TurnKind() TurnKind { return e.state.Cursor.Kind }

// Participant 按座位号获取
func (e *Engine) Participant(seat int) *Participant { return e.state.Participant(seat) }

// DrainSealed 取出自上次调用以来新关闭的日志条目
func (e *Engine) DrainSealed() []LogEntry {
	out := e.sealed
	e.sealed = nil
	return out
}

// Start 开局：分配身份并进入第一个阶段
func (e *Engine) Start(participants []Participant, seed uint64) ([]Event, error) {
	s := e.state
	if s.Phase != PhaseLobby {
		return nil, apperrors.ErrPhaseViolation.WithDetail("game already started")
	}
	if len(participants) == 0 {
		return nil, apperrors.ErrInvalidParams.WithDetail("no participants")
	}

	seated := slices.Clone(participants)
	sort.Slice(seated, func(i, j int) bool { return seated[i].Seat < seated[j].Seat })
	for i, p := range seated {
		if p.Seat != i+1 {
			return nil, apperrors.ErrInvalidParams.WithDetail("seats must be numbered 1..%d, got %d at position %d", len(seated), p.Seat, i+1)
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	roles, err := e.rules.AssignRoles(len(seated), rng)
	if err != nil {
		return nil, err
	}

	s.Participants = make([]*Participant, len(seated))
	for i := range seated {
		p := seated[i]
		p.Alive = true
		p.Role = roles[i]
		if p.Kind == "" {
			p.Kind = KindHuman
		}
		s.Participants[i] = &p
	}
	s.StartedAt = e.now()

	e.logger.Info("game starting", "seats", len(seated), "ruleset", e.rules.Name())

	events := []Event{{
		Name: proto.EventGameStarted,
		Data: proto.GameStarted{
			Ruleset: e.rules.Name(),
			Phase:   string(e.rules.FirstPhase()),
			Day:     s.Day,
			Seats:   e.seatInfos(false),
		},
	}}
	for _, p := range s.Participants {
		e.appendEntry(LogEntry{
			Type:       EntryPrivate,
			Seat:       p.Seat,
			Content:    fmt.Sprintf("seat %d is %s", p.Seat, p.Role),
			Closed:     true,
			Visibility: VisibilityPrivate,
			Audience:   []int{p.Seat},
		})
		events = append(events, Event{
			Name: proto.EventRoleAssigned,
			Data: proto.RoleAssigned{
				Seat:      p.Seat,
				Role:      string(p.Role),
				Teammates: e.rules.Teammates(s, p.Seat),
			},
			Audience: []int{p.Seat},
		})
	}

	events = append(events, e.enterPhase(e.rules.FirstPhase())...)
	events = append(events, e.settle()...)
	s.Version++
	return events, nil
}

// CanAct 按顺序校验：未暂停、座位有效、轮到该座位、规则合法
func (e *Engine) CanAct(seat int, action Action) (*Participant, error) {
	s := e.state
	switch s.Phase {
	case PhasePaused:
		return nil, apperrors.ErrGamePaused
	case PhaseEnded:
		return nil, apperrors.ErrGameEnded
	case PhaseLobby:
		return nil, apperrors.ErrGameNotStarted
	}

	p := s.Participant(seat)
	if p == nil {
		return nil, apperrors.ErrSeatNotFound.WithDetail("seat %d", seat)
	}
	if !p.Alive {
		return nil, apperrors.ErrSeatDead.WithDetail("seat %d", seat)
	}
	if !s.Cursor.IsDue(seat) {
		if s.Cursor.Mode == StepSequential {
			return nil, apperrors.ErrNotYourTurn.WithDetail("current seat is %d", s.Cursor.Current)
		}
		return nil, apperrors.ErrNotYourTurn.WithDetail("seat %d has no pending action", seat)
	}
	if action.Target != 0 && !s.IsAlive(action.Target) {
		return nil, apperrors.ErrInvalidTarget.WithDetail("seat %d is not alive", action.Target)
	}
	if err := e.rules.Validate(s, seat, action); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyAction 提交动作，返回需要广播的事件；拒绝以 *errors.AppError 返回
func (e *Engine) ApplyAction(seat int, action Action) ([]Event, error) {
	p, err := e.CanAct(seat, action)
	if err != nil {
		return nil, err
	}

	events := e.commit(p, action)
	if outcome, ok := e.rules.CheckWinner(e.state); ok {
		events = append(events, e.finish(outcome)...)
	} else {
		events = append(events, e.settle()...)
	}
	e.state.Version++
	return events, nil
}

func (e *Engine) commit(p *Participant, action Action) []Event {
	s := e.state
	s.Records = append(s.Records, ActionRecord{
		Seat:   p.Seat,
		Action: action,
		Day:    s.Day,
		Phase:  s.Phase,
		Step:   s.Step,
		At:     e.now(),
	})

	audience := e.rules.Audience(s, p.Seat, action)
	markers := actionMarkers(p, action)
	var events []Event

	if action.Type == ActionSpeech {
		if action.EntryID == 0 {
			entry := e.appendEntry(LogEntry{
				Type:       EntrySpeech,
				Seat:       p.Seat,
				Content:    action.Content,
				Closed:     true,
				Visibility: VisibilityPublic,
				Markers:    markers,
			})
			events = append(events,
				Event{Name: proto.EventSpeechStart, Data: proto.SpeechStart{Seat: p.Seat, EntryID: entry.ID}},
				Event{Name: proto.EventSpeechEnd, Data: proto.SpeechEnd{Seat: p.Seat, EntryID: entry.ID, Content: entry.Content}},
			)
		}
	} else {
		entry := LogEntry{
			Type:       EntryAction,
			Seat:       p.Seat,
			Content:    describeAction(p.Seat, action),
			Closed:     true,
			Visibility: VisibilityPublic,
			Markers:    markers,
		}
		if audience != nil {
			entry.Visibility = VisibilityPrivate
			entry.Audience = audience
		}
		e.appendEntry(entry)
	}

	if p.IsAI() && action.Type != ActionSpeech {
		events = append(events, Event{
			Name: proto.EventAIAction,
			Data: proto.AIAction{
				Seat:      p.Seat,
				Action:    proto.ActionPayload{Type: string(action.Type), Target: action.Target},
				Reasoning: action.Reasoning,
			},
			Audience: audience,
		})
	}
	if action.Fallback {
		e.logger.Warn("fallback action committed", "seat", p.Seat, "action", action.Type, "cause", action.FallbackCause)
	}

	s.Cursor.Advance(p.Seat, s.IsAlive)

	delta := proto.Delta{
		Kind:   "action",
		Seat:   p.Seat,
		Action: &proto.ActionPayload{Type: string(action.Type), Target: action.Target},
	}
	if audience != nil {
		events = append(events, e.stateUpdated(delta, audience))
		events = append(events, e.stateUpdated(proto.Delta{Kind: "progress"}, nil))
	} else {
		events = append(events, e.stateUpdated(delta, nil))
	}
	return events
}

// settle 当前步骤完成后推进步骤与阶段，直到有人需要行动或游戏结束
func (e *Engine) settle() []Event {
	s := e.state
	var events []Event
	for i := 0; i < maxSettleRounds; i++ {
		if s.Phase == PhaseEnded || s.Phase == PhasePaused || !s.Cursor.Complete() {
			return events
		}
		s.Step++
		if plan, ok := e.rules.Plan(s, s.Phase, s.Step); ok {
			s.Cursor.Begin(plan, s.AliveSeats())
			if !s.Cursor.Complete() {
				events = append(events, e.stateUpdated(proto.Delta{Kind: "step"}, nil))
			}
			continue
		}
		events = append(events, e.closePhase()...)
	}
	e.logger.Error("settle did not converge", "phase", s.Phase, "step", s.Step)
	return events
}

// closePhase 结算当前阶段并进入下一阶段
func (e *Engine) closePhase() []Event {
	s := e.state
	res := e.rules.Resolve(s, s.Phase)
	var events []Event

	if len(res.Deaths) > 0 {
		deaths := make([]proto.DeathInfo, 0, len(res.Deaths))
		for _, d := range res.Deaths {
			p := s.Participant(d.Seat)
			if p == nil || !p.Alive {
				continue
			}
			p.Alive = false
			s.Cursor.Drop(d.Seat)
			e.appendEntry(LogEntry{
				Type:       EntryDeath,
				Seat:       d.Seat,
				Content:    fmt.Sprintf("seat %d died (%s), role %s", d.Seat, d.Cause, p.Role),
				Closed:     true,
				Visibility: VisibilityPublic,
			})
			deaths = append(deaths, proto.DeathInfo{Seat: d.Seat, Cause: d.Cause, Role: string(p.Role)})
		}
		if len(deaths) > 0 {
			events = append(events, e.stateUpdated(proto.Delta{Kind: "resolution", Phase: string(s.Phase), Deaths: deaths}, nil))
		}
	}
	for _, note := range res.Notes {
		e.appendEntry(LogEntry{
			Type:       EntryPrivate,
			Seat:       note.Seat,
			Content:    note.Content,
			Closed:     true,
			Visibility: VisibilityPrivate,
			Audience:   []int{note.Seat},
		})
		events = append(events, Event{
			Name:     proto.EventPrivateResult,
			Data:     proto.PrivateResult{Seat: note.Seat, Kind: note.Kind, Target: note.Target, Content: note.Content},
			Audience: []int{note.Seat},
		})
	}
	for _, msg := range res.Announcements {
		e.appendEntry(LogEntry{Type: EntrySystem, Content: msg, Closed: true, Visibility: VisibilityPublic})
	}

	if outcome, ok := e.rules.CheckWinner(s); ok {
		return append(events, e.finish(outcome)...)
	}
	return append(events, e.enterPhase(e.rules.NextPhase(s, s.Phase))...)
}

// enterPhase 进入阶段，Night -> Day-Discussion 时天数加一
func (e *Engine) enterPhase(next Phase) []Event {
	s := e.state
	prev := s.Phase
	s.Phase = next
	s.PhaseSeq++
	if prev == PhaseNight && next == PhaseDiscussion {
		s.Day++
	}
	s.Step = 0
	s.Records = nil

	e.appendEntry(LogEntry{
		Type:       EntryPhase,
		Content:    fmt.Sprintf("%s begins (day %d)", next, s.Day),
		Closed:     true,
		Visibility: VisibilityPublic,
	})
	e.logger.Debug("phase entered", "phase", next, "day", s.Day)

	if plan, ok := e.rules.Plan(s, next, 0); ok {
		s.Cursor.Begin(plan, s.AliveSeats())
	} else {
		s.Cursor.Clear()
	}
	return []Event{e.stateUpdated(proto.Delta{Kind: "phase", Phase: string(next)}, nil)}
}

// finish 结束游戏
func (e *Engine) finish(outcome Outcome) []Event {
	s := e.state
	if outcome.Survivors == nil {
		outcome.Survivors = s.AliveSeats()
	}
	s.Outcome = &outcome
	s.ResumePhase = ""
	s.Phase = PhaseEnded
	s.PhaseSeq++
	s.EndedAt = e.now()
	s.Cursor.Clear()

	e.appendEntry(LogEntry{
		Type:       EntryResult,
		Content:    fmt.Sprintf("winner: %s (%s)", outcome.Winner, outcome.Reason),
		Closed:     true,
		Visibility: VisibilityPublic,
	})
	e.logger.Info("game completed", "winner", outcome.Winner, "reason", outcome.Reason, "day", s.Day)

	return []Event{{
		Name: proto.EventGameCompleted,
		Data: proto.GameCompleted{
			Result:     proto.GameResult{Winner: outcome.Winner, Reason: outcome.Reason, Survivors: outcome.Survivors},
			FinalState: e.seatInfos(true),
			Day:        s.Day,
		},
	}}
}

// Pause 暂停
func (e *Engine) Pause(turnRemaining time.Duration) ([]Event, error) {
	s := e.state
	switch s.Phase {
	case PhaseLobby:
		return nil, apperrors.ErrGameNotStarted
	case PhaseEnded:
		return nil, apperrors.ErrGameEnded
	case PhasePaused:
		return nil, apperrors.ErrGamePaused
	}
	s.ResumePhase = s.Phase
	s.Phase = PhasePaused
	s.Version++

	e.appendEntry(LogEntry{Type: EntrySystem, Content: "game paused", Closed: true, Visibility: VisibilityPublic})
	return []Event{{
		Name: proto.EventGamePaused,
		Data: proto.PauseChanged{
			Phase:           string(PhasePaused),
			ResumePhase:     string(s.ResumePhase),
			TurnRemainingMs: turnRemaining.Milliseconds(),
		},
	}}, nil
}

// Resume 恢复
func (e *Engine) Resume(turnRemaining time.Duration) ([]Event, error) {
	s := e.state
	if s.Phase != PhasePaused {
		return nil, apperrors.ErrNotPaused
	}
	s.Phase = s.ResumePhase
	s.ResumePhase = ""
	s.Version++

	e.appendEntry(LogEntry{Type: EntrySystem, Content: "game resumed", Closed: true, Visibility: VisibilityPublic})
	events := []Event{{
		Name: proto.EventGameResumed,
		Data: proto.PauseChanged{Phase: string(s.Phase), TurnRemainingMs: turnRemaining.Milliseconds()},
	}}
	return append(events, e.settle()...), nil
}

// Stop 强制结束
func (e *Engine) Stop(reason string) []Event {
	if e.state.Phase == PhaseEnded {
		return nil
	}
	events := e.finish(Outcome{Winner: "none", Reason: reason})
	e.state.Version++
	return events
}

// ConvertToAI 座位原地转为 AI 控制，身份与存活状态不变，不可逆
func (e *Engine) ConvertToAI(seat int, persona string) ([]Event, error) {
	p := e.state.Participant(seat)
	if p == nil {
		return nil, apperrors.ErrSeatNotFound.WithDetail("seat %d", seat)
	}
	if p.IsAI() {
		return nil, apperrors.ErrSeatReplaced.WithDetail("seat %d", seat)
	}
	now := e.now()
	p.Kind = KindAI
	p.Persona = persona
	p.ReplacedAt = &now
	e.state.Version++

	e.appendEntry(LogEntry{
		Type:       EntryPresence,
		Seat:       seat,
		Content:    fmt.Sprintf("seat %d replaced by ai", seat),
		Closed:     true,
		Visibility: VisibilityPublic,
	})
	return []Event{{
		Name: proto.EventPlayerReplaced,
		Data: proto.PresenceChanged{Seat: seat, Name: p.Name},
	}}, nil
}

// Note 追加一条非动作日志 (在线状态、AI 故障等)
func (e *Engine) Note(entry LogEntry) LogEntry {
	entry.Closed = true
	if entry.Visibility == "" {
		entry.Visibility = VisibilityPublic
	}
	e.state.Version++
	return e.appendEntry(entry)
}

// OpenSpeech 为轮到发言的座位创建流式条目
func (e *Engine) OpenSpeech(seat int) (int64, []Event, error) {
	if _, err := e.CanAct(seat, Action{Type: ActionSpeech}); err != nil {
		return 0, nil, err
	}
	entry := e.appendEntry(LogEntry{
		Type:       EntrySpeech,
		Seat:       seat,
		Visibility: VisibilityPublic,
		Markers:    map[string]string{MarkerAI: "true"},
	})
	e.state.Version++
	return entry.ID, []Event{{
		Name: proto.EventSpeechStart,
		Data: proto.SpeechStart{Seat: seat, EntryID: entry.ID},
	}}, nil
}

// AppendSpeech 流式条目追加内容，accumulated 为截至当前的全部文本
func (e *Engine) AppendSpeech(entryID int64, accumulated string) ([]Event, error) {
	entry := e.findEntry(entryID)
	if entry == nil {
		return nil, apperrors.ErrInvalidAction.WithDetail("entry %d not found", entryID)
	}
	if entry.Closed {
		return nil, apperrors.ErrInvalidAction.WithDetail("entry %d already closed", entryID)
	}
	chunk := accumulated
	if strings.HasPrefix(accumulated, entry.Content) {
		chunk = accumulated[len(entry.Content):]
	}
	entry.Content = accumulated
	e.state.Version++
	return []Event{{
		Name: proto.EventSpeechChunk,
		Data: proto.SpeechChunk{Seat: entry.Seat, EntryID: entryID, Chunk: chunk, Accumulated: accumulated},
	}}, nil
}

// CloseSpeech 关闭流式条目
func (e *Engine) CloseSpeech(entryID int64, markers map[string]string) (LogEntry, []Event, error) {
	entry := e.findEntry(entryID)
	if entry == nil {
		return LogEntry{}, nil, apperrors.ErrInvalidAction.WithDetail("entry %d not found", entryID)
	}
	if entry.Closed {
		return entry.Clone(), nil, nil
	}
	for k, v := range markers {
		if entry.Markers == nil {
			entry.Markers = make(map[string]string)
		}
		entry.Markers[k] = v
	}
	entry.Closed = true
	e.sealed = append(e.sealed, entry.Clone())
	e.state.Version++
	return entry.Clone(), []Event{{
		Name: proto.EventSpeechEnd,
		Data: proto.SpeechEnd{Seat: entry.Seat, EntryID: entryID, Content: entry.Content},
	}}, nil
}

func (e *Engine) findEntry(id int64) *LogEntry {
	log := e.state.Log
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].ID == id {
			return &log[i]
		}
	}
	return nil
}

func (e *Engine) appendEntry(entry LogEntry) LogEntry {
	s := e.state
	e.seq++
	entry.ID = e.nextID()
	entry.Seq = e.seq
	entry.RoomCode = s.RoomCode
	entry.Day = s.Day
	if entry.Phase == "" {
		entry.Phase = s.Phase
	}
	entry.CreatedAt = e.now()
	s.Log = append(s.Log, entry)
	if entry.Closed {
		e.sealed = append(e.sealed, entry.Clone())
	}
	return entry
}

// TurnInfo 当前回合，viewer 为 0 时隐藏并发步骤的待行动名单
func (e *Engine) TurnInfo(viewer int) proto.TurnInfo {
	return turnInfo(e.state.Phase, e.state.Day, e.state.Step, e.state.Cursor, viewer)
}

func turnInfo(phase Phase, day, step int, c TurnCursor, viewer int) proto.TurnInfo {
	info := proto.TurnInfo{
		Phase:   string(phase),
		Day:     day,
		Step:    step,
		Mode:    string(c.Mode),
		Kind:    string(c.Kind),
		Current: c.Current,
	}
	if c.Mode == StepConcurrent && viewer != 0 && slices.Contains(c.Pending, viewer) {
		info.Pending = []int{viewer}
	}
	return info
}

func (e *Engine) stateUpdated(delta proto.Delta, audience []int) Event {
	viewer := 0
	if len(audience) == 1 {
		viewer = audience[0]
	}
	return Event{
		Name: proto.EventStateUpdated,
		Data: proto.StateUpdated{
			TurnNumber:  e.state.Cursor.Version,
			CurrentTurn: e.TurnInfo(viewer),
			Delta:       delta,
		},
		Audience: audience,
	}
}

func (e *Engine) seatInfos(withRoles bool) []proto.SeatInfo {
	return seatInfos(e.state.Participants, withRoles)
}

func seatInfos(participants []*Participant, withRoles bool) []proto.SeatInfo {
	out := make([]proto.SeatInfo, 0, len(participants))
	for _, p := range participants {
		info := proto.SeatInfo{Seat: p.Seat, Name: p.Name, Kind: string(p.Kind), Alive: p.Alive}
		if withRoles {
			info.Role = string(p.Role)
		}
		out = append(out, info)
	}
	return out
}

func actionMarkers(p *Participant, action Action) map[string]string {
	markers := map[string]string{}
	if p.IsAI() {
		markers[MarkerAI] = "true"
	}
	if action.Timeout {
		markers[MarkerTimeout] = "true"
	}
	if action.Fallback {
		markers[MarkerFallback] = action.FallbackCause
		if action.FallbackCause == "" {
			markers[MarkerFallback] = "true"
		}
	}
	if len(markers) == 0 {
		return nil
	}
	return markers
}

func describeAction(seat int, action Action) string {
	if action.Target != 0 {
		return fmt.Sprintf("seat %d %s seat %d", seat, action.Type, action.Target)
	}
	return fmt.Sprintf("seat %d %s", seat, action.Type)
}
