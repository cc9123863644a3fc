package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// 默认时限
const (
	DefaultActionTimeout = 10 * time.Second
	DefaultSpeechTimeout = 60 * time.Second
)

// Config 编排器配置
type Config struct {
	ActionTimeout time.Duration // 离散决策硬超时
	SpeechTimeout time.Duration // 整段发言硬超时
	ChunkTimeout  time.Duration // 相邻片段最大间隔
}

// Result 离散决策结果；Err 非空时 Action 为兜底动作
type Result struct {
	Action core.Action
	Err    error
}

// Orchestrator AI 编排器
// 失败与超时都转为兜底动作，不向房间返回错误
type Orchestrator struct {
	agent  Agent
	cfg    Config
	mu     sync.Mutex
	rng    *rand.Rand
	logger *slog.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(agent Agent, cfg Config) *Orchestrator {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = DefaultSpeechTimeout
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = cfg.ActionTimeout
	}
	return &Orchestrator{
		agent:  agent,
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7)),
		logger: slog.Default().With("component", "AIOrchestrator", "agent", agent.Name()),
	}
}

// RequestAction 请求离散决策，最长阻塞 ActionTimeout
func (o *Orchestrator) RequestAction(ctx context.Context, dc DecisionContext) Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	defer cancel()

	type reply struct {
		d   Decision
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		d, err := o.agent.RequestAction(ctx, dc)
		done <- reply{d, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = apperrors.ErrAITimeout.Wrap(ctx.Err())
	}

	if r.err == nil && !dc.Allows(r.d) {
		r.err = apperrors.ErrAIAgent.WithDetail("illegal decision %s -> %d", r.d.Type, r.d.Target)
	}
	if r.err != nil {
		o.logger.Warn("ai decision failed, using fallback", "roomCode", dc.RoomCode, "seat", dc.Seat, "error", r.err)
		return Result{Action: o.Fallback(dc, r.err), Err: r.err}
	}
	return Result{Action: core.Action{Type: r.d.Type, Target: r.d.Target, Reasoning: r.d.Reasoning}}
}

// Fallback 兜底动作：夜间技能随机选择合法目标，其余弃权
func (o *Orchestrator) Fallback(dc DecisionContext, cause error) core.Action {
	action := core.Action{Type: core.ActionPass, Fallback: true}
	if cause != nil {
		action.FallbackCause = apperrors.GetMessage(cause)
	}
	if dc.Phase != core.PhaseNight {
		return action
	}
	for _, t := range dc.LegalActions {
		targets := dc.LegalTargets[t]
		if t == core.ActionPass || len(targets) == 0 {
			continue
		}
		o.mu.Lock()
		action.Target = targets[o.rng.IntN(len(targets))]
		o.mu.Unlock()
		action.Type = t
		return action
	}
	return action
}

// StreamChunk 发言流的一帧；Done 为终止帧，Accumulated 为截至当前的全部文本
type StreamChunk struct {
	Seq         int
	Accumulated string
	Done        bool
	Err         error
}

// Stream 可取消的发言流
type Stream struct {
	chunks chan StreamChunk
	cancel context.CancelFunc
	done   chan struct{}
}

// Chunks 片段通道，终止帧之后关闭
func (s *Stream) Chunks() <-chan StreamChunk { return s.chunks }

// Cancel 取消发言流，幂等；终止帧的 Err 为 context.Canceled
func (s *Stream) Cancel() { s.cancel() }

// Done 发言流协程退出
func (s *Stream) Done() <-chan struct{} { return s.done }

// RequestSpeech 请求流式发言
// 终止帧一定会发出（除非消费方先取消），Err 非空表示异常结束，Accumulated 保留已收到的内容
func (o *Orchestrator) RequestSpeech(ctx context.Context, dc DecisionContext) *Stream {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SpeechTimeout)
	s := &Stream{
		chunks: make(chan StreamChunk, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go o.pump(ctx, dc, s)
	return s
}

func (o *Orchestrator) pump(ctx context.Context, dc DecisionContext, s *Stream) {
	defer close(s.done)
	defer close(s.chunks)
	defer s.cancel()

	var acc string
	seq := 0
	emit := func(c StreamChunk) bool {
		seq++
		c.Seq = seq
		c.Accumulated = acc
		select {
		case s.chunks <- c:
			return true
		case <-ctx.Done():
			if c.Done {
				// 消费方仍可能在等终止帧，缓冲区有空位时尽量送达
				select {
				case s.chunks <- c:
				default:
				}
			}
			return false
		}
	}
	fail := func(err error) {
		o.logger.Warn("ai speech failed", "roomCode", dc.RoomCode, "seat", dc.Seat, "error", err, "received", len(acc))
		emit(StreamChunk{Done: true, Err: err})
	}

	in, err := o.agent.RequestSpeech(ctx, dc)
	if err != nil {
		fail(apperrors.ErrAIAgent.Wrap(err))
		return
	}

	idle := time.NewTimer(o.cfg.ChunkTimeout)
	defer idle.Stop()
	for {
		select {
		case c, ok := <-in:
			if !ok {
				if err := ctx.Err(); err != nil {
					fail(speechCause(err))
					return
				}
				emit(StreamChunk{Done: true})
				return
			}
			if c.Err != nil {
				fail(apperrors.ErrAIAgent.Wrap(c.Err))
				return
			}
			acc += c.Text
			if !emit(StreamChunk{}) {
				fail(speechCause(ctx.Err()))
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(o.cfg.ChunkTimeout)
		case <-idle.C:
			fail(apperrors.ErrAITimeout.WithDetail("no chunk within %s", o.cfg.ChunkTimeout))
			return
		case <-ctx.Done():
			fail(speechCause(ctx.Err()))
			return
		}
	}
}

func speechCause(err error) error {
	if err == context.DeadlineExceeded {
		return apperrors.ErrAITimeout.Wrap(err)
	}
	return err
}
