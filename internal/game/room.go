package game

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"sudooom.im.werewolf/internal/broadcast"
	"sudooom.im.werewolf/internal/game/ai"
	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/internal/game/presence"
	"sudooom.im.werewolf/internal/store"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// Timers 房间使用的计时器，*task.Scheduler 满足该接口
type Timers = presence.Timers

// RoomConfig 房间时限配置
type RoomConfig struct {
	SpeechTimeout    time.Duration // 发言回合
	ActionTimeout    time.Duration // 夜间行动
	VoteTimeout      time.Duration // 投票
	GracePeriod      time.Duration // 断线宽限期
	RecentLog        int           // 快照携带的公开日志条数
	InboxSize        int
	SubscriberBuffer int
}

// 默认时限
const (
	DefaultSpeechTimeout = 90 * time.Second
	DefaultActionTimeout = 30 * time.Second
	DefaultVoteTimeout   = 30 * time.Second
	DefaultRecentLog     = 50
)

func (c RoomConfig) withDefaults() RoomConfig {
	if c.SpeechTimeout <= 0 {
		c.SpeechTimeout = DefaultSpeechTimeout
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = DefaultActionTimeout
	}
	if c.VoteTimeout <= 0 {
		c.VoteTimeout = DefaultVoteTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = presence.DefaultGracePeriod
	}
	if c.RecentLog <= 0 {
		c.RecentLog = DefaultRecentLog
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
	return c
}

// TurnTimeout 回合类型对应的时限
func (c RoomConfig) TurnTimeout(kind core.TurnKind) time.Duration {
	switch kind {
	case core.TurnSpeech:
		return c.SpeechTimeout
	case core.TurnVote:
		return c.VoteTimeout
	default:
		return c.ActionTimeout
	}
}

// Deps 房间依赖，除 Timers 外均可为空；未提供 Orchestrator 时使用随机 AI
type Deps struct {
	Timers       Timers
	Orchestrator *ai.Orchestrator
	Store        store.LogStore
	Cache        store.RoomCache
	Sink         broadcast.Sink
	IDs          func() int64
	Now          func() time.Time
}

// Room 房间
// 所有状态修改都在 run 协程中顺序执行；读操作使用发布的只读视图
type Room struct {
	code     string
	cfg      RoomConfig
	deps     Deps
	engine   *core.Engine
	presence *presence.Tracker
	hub      *broadcast.Hub
	rng      *rand.Rand
	now      func() time.Time

	inbox     chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	view       atomic.Pointer[core.View]
	lastActive atomic.Int64

	// 以下字段只在 run 协程中访问
	turn     turnTimer
	job      *aiJob
	jobSeq   int64
	held     []heldCommit
	later    []func()
	lobby    map[string]*broadcast.Subscription
	phaseSeq int64
	finished bool
	logger   *slog.Logger
}

// NewRoom 创建房间并启动顺序执行协程
func NewRoom(code string, rules core.Ruleset, cfg RoomConfig, deps Deps) *Room {
	cfg = cfg.withDefaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Orchestrator == nil {
		deps.Orchestrator = ai.NewOrchestrator(ai.NewRandomAgent(uint64(deps.Now().UnixNano()), 0), ai.Config{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		code:   code,
		cfg:    cfg,
		deps:   deps,
		hub:    broadcast.NewHub(code, cfg.SubscriberBuffer, deps.Sink),
		rng:    rand.New(rand.NewPCG(uint64(deps.Now().UnixNano()), 11)),
		now:    deps.Now,
		inbox:  make(chan func(), cfg.InboxSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		lobby:  make(map[string]*broadcast.Subscription),
		logger: slog.Default().With("component", "Room", "roomCode", code),
	}

	opts := []core.Option{core.WithClock(deps.Now), core.WithLogger(r.logger)}
	if deps.IDs != nil {
		opts = append(opts, core.WithIDGenerator(deps.IDs))
	}
	r.engine = core.NewEngine(code, rules, opts...)
	r.presence = presence.NewTracker(code, cfg.GracePeriod, deps.Timers, r.onGraceTimer)
	r.presence.SetClock(deps.Now)

	r.view.Store(r.engine.View())
	r.touch()

	go r.run()
	return r
}

// Code 房间号
func (r *Room) Code() string { return r.code }

// Ruleset 规则名
func (r *Room) Ruleset() string { return r.engine.Rules().Name() }

// Hub 事件分发器
func (r *Room) Hub() *broadcast.Hub { return r.hub }

// View 最近一次提交后的只读视图
func (r *Room) View() *core.View { return r.view.Load() }

// LastActive 最后活跃时间
func (r *Room) LastActive() time.Time { return time.UnixMilli(r.lastActive.Load()) }

// Done 顺序执行协程退出
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) touch() {
	r.lastActive.Store(r.now().UnixMilli())
}

func (r *Room) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.teardown()
			return
		case fn := <-r.inbox:
			r.step(fn)
		}
	}
}

// step 执行一次修改并发布结果
func (r *Room) step(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.later = nil
			r.logger.Error("room step panic recovered", "panic", rec)
		}
	}()
	fn()
	r.afterStep()
	for len(r.later) > 0 {
		next := r.later[0]
		r.later = r.later[1:]
		next()
		r.afterStep()
	}
	r.touch()
}

// deferStep 在本次修改发布后执行，用于 afterStep 内部需要再次修改状态的场景
func (r *Room) deferStep(fn func()) {
	r.later = append(r.later, fn)
}

// exec 在顺序执行协程中运行 fn 并等待结果
func (r *Room) exec(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	op := func() {
		err := error(apperrors.ErrServerError)
		defer func() { errCh <- err }()
		err = fn()
	}

	select {
	case r.inbox <- op:
	case <-r.done:
		return apperrors.ErrRoomTerminated
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-r.done:
		select {
		case err := <-errCh:
			return err
		default:
			return apperrors.ErrRoomTerminated
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post 从计时器或 AI 协程投递消息，房间关闭后返回 false
func (r *Room) post(fn func()) bool {
	select {
	case r.inbox <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// afterStep 每次修改后：安排下一回合、持久化已关闭的日志、发布视图
func (r *Room) afterStep() {
	switch r.engine.Phase() {
	case core.PhaseEnded:
		r.onEnded()
	case core.PhaseLobby, core.PhasePaused:
	default:
		r.armTurn()
		r.dispatchAI()
	}

	r.persist()
	v := r.engine.View()
	r.view.Store(v)

	if seq := r.engine.State().PhaseSeq; seq != r.phaseSeq {
		r.phaseSeq = seq
		r.cacheSnapshot(v)
	}
}

func (r *Room) emit(events []core.Event) {
	for _, e := range events {
		r.hub.Publish(r.ctx, e.Name, e.Data, e.Audience)
	}
}

func (r *Room) persist() {
	sealed := r.engine.DrainSealed()
	if len(sealed) == 0 || r.deps.Store == nil {
		return
	}
	if err := r.deps.Store.Append(r.ctx, sealed); err != nil {
		r.logger.Error("Failed to persist log entries", "count", len(sealed), "error", err)
	}
}

// background 执行不影响房间顺序的外部写入
func (r *Room) background(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.logger.Warn("Background write failed", "op", name, "error", err)
		}
	}()
}

func (r *Room) cacheSnapshot(v *core.View) {
	if r.deps.Cache == nil {
		return
	}
	snap := v.Snapshot(0, r.cfg.RecentLog, r.now())
	r.background("snapshot", func(ctx context.Context) error {
		return r.deps.Cache.SaveSnapshot(ctx, snap)
	})
}

func (r *Room) cachePresence(seat int, status presence.Status) {
	if r.deps.Cache == nil {
		return
	}
	r.background("presence", func(ctx context.Context) error {
		return r.deps.Cache.SetPresence(ctx, r.code, seat, string(status))
	})
}

// onEnded 游戏结束：停止计时与 AI，保存结算
func (r *Room) onEnded() {
	if r.finished {
		return
	}
	v := r.engine.View()
	r.finished = true
	r.abortJob()
	r.clearTurn()
	r.presence.Close()
	r.held = nil

	if r.deps.Store != nil && v.Outcome != nil {
		record := store.GameRecord{
			RoomCode:  r.code,
			Ruleset:   v.Ruleset,
			Winner:    v.Outcome.Winner,
			Reason:    v.Outcome.Reason,
			Survivors: v.Outcome.Survivors,
			StartedAt: v.StartedAt,
			EndedAt:   r.now(),
		}
		for _, p := range v.Participants {
			record.Seats = append(record.Seats, proto.SeatInfo{
				Seat: p.Seat, Name: p.Name, Kind: string(p.Kind), Alive: p.Alive, Role: string(p.Role), Persona: p.Persona,
			})
		}
		r.background("result", func(ctx context.Context) error {
			return r.deps.Store.SaveResult(ctx, record)
		})
	}
	r.cacheSnapshot(v)
	r.logger.Info("Room finished", "day", v.Day)
}

// Close 关闭房间：取消计时与 AI，通知并断开所有订阅
func (r *Room) Close() {
	r.closeOnce.Do(r.cancel)
	<-r.done
}

func (r *Room) teardown() {
	r.abortJob()
	r.clearTurn()
	r.presence.Close()

	// 已排队的消息不再执行，但仍需唤醒等待者
	for {
		select {
		case <-r.inbox:
			continue
		default:
		}
		break
	}

	r.persist()
	if !r.finished {
		env := proto.NewEnvelope(proto.EventError, r.code, ErrorPayload(apperrors.ErrRoomTerminated))
		for _, p := range r.engine.View().Participants {
			r.hub.SendTo(p.Seat, env)
		}
		r.hub.SendTo(0, env)
	}
	r.hub.Close(apperrors.ErrRoomTerminated)
	r.logger.Info("Room closed")
}
