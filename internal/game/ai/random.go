package ai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"sudooom.im.werewolf/internal/game/core"
)

// RandomAgent 本地规则 AI，不依赖外部服务；同时作为外部 AI 故障时的兜底
type RandomAgent struct {
	mu         sync.Mutex
	rng        *rand.Rand
	chunkDelay time.Duration
}

// NewRandomAgent 创建本地 AI，chunkDelay 为相邻发言片段之间的间隔
func NewRandomAgent(seed uint64, chunkDelay time.Duration) *RandomAgent {
	return &RandomAgent{
		rng:        rand.New(rand.NewPCG(seed, seed+1)),
		chunkDelay: chunkDelay,
	}
}

// Name 实现名称
func (a *RandomAgent) Name() string { return "random" }

func (a *RandomAgent) intN(n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.IntN(n)
}

func (a *RandomAgent) float() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64()
}

// RequestAction 在合法动作中选择：夜间技能总是使用，投票按性格决定是否弃权
func (a *RandomAgent) RequestAction(ctx context.Context, dc DecisionContext) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	strategy := StrategyFor(dc.Persona)

	for _, action := range dc.LegalActions {
		if action == core.ActionPass || action == core.ActionSpeech {
			continue
		}
		targets := dc.LegalTargets[action]
		if len(targets) == 0 {
			continue
		}
		if dc.Phase != core.PhaseNight && a.float() > strategy.Aggression {
			break
		}
		target := a.pickTarget(dc, targets)
		return Decision{
			Type:      action,
			Target:    target,
			Reasoning: fmt.Sprintf("%s instinct points at seat %d", strategy.Persona, target),
		}, nil
	}
	return Decision{Type: core.ActionPass, Reasoning: "nothing worth doing"}, nil
}

// pickTarget 优先选择本轮发言中被提到最多的座位
func (a *RandomAgent) pickTarget(dc DecisionContext, targets []int) int {
	mentions := make(map[int]int)
	for _, s := range dc.RoundSpeeches {
		for _, t := range targets {
			if strings.Contains(s.Content, fmt.Sprintf("seat %d", t)) {
				mentions[t]++
			}
		}
	}
	best, bestCount := 0, 0
	for _, t := range targets {
		if slices.Contains(dc.Teammates, t) {
			continue
		}
		if mentions[t] > bestCount {
			best, bestCount = t, mentions[t]
		}
	}
	if best != 0 {
		return best
	}
	return targets[a.intN(len(targets))]
}

// RequestSpeech 按性格拼一段发言，逐词输出
func (a *RandomAgent) RequestSpeech(ctx context.Context, dc DecisionContext) (<-chan Chunk, error) {
	text := a.compose(dc)
	words := strings.Fields(text)

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for i, w := range words {
			if i > 0 {
				w = " " + w
				if a.chunkDelay > 0 {
					select {
					case <-time.After(a.chunkDelay):
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case ch <- Chunk{Text: w}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (a *RandomAgent) compose(dc DecisionContext) string {
	strategy := StrategyFor(dc.Persona)
	opener := strategy.Openers[a.intN(len(strategy.Openers))]

	var others []int
	for _, s := range dc.Alive {
		if s != dc.Seat && !slices.Contains(dc.Teammates, s) {
			others = append(others, s)
		}
	}
	if len(others) == 0 {
		return opener + " I have nothing more to add."
	}
	suspect := others[a.intN(len(others))]

	var b strings.Builder
	b.WriteString(opener)
	if n := len(dc.RoundSpeeches); n > 0 {
		last := dc.RoundSpeeches[n-1]
		fmt.Fprintf(&b, " Seat %d just spoke and I heard them.", last.Seat)
	}
	fmt.Fprintf(&b, " Right now I am watching seat %d.", suspect)
	return b.String()
}
