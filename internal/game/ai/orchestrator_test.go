package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sudooom.im.werewolf/internal/game/classic"
	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

type mockAgent struct {
	mock.Mock
}

func (m *mockAgent) Name() string { return "mock" }

func (m *mockAgent) RequestAction(ctx context.Context, dc DecisionContext) (Decision, error) {
	args := m.Called(ctx, dc)
	return args.Get(0).(Decision), args.Error(1)
}

func (m *mockAgent) RequestSpeech(ctx context.Context, dc DecisionContext) (<-chan Chunk, error) {
	args := m.Called(ctx, dc)
	ch, _ := args.Get(0).(chan Chunk)
	return ch, args.Error(1)
}

// blockingAgent 忽略 ctx，一直不返回
type blockingAgent struct{ release chan struct{} }

func (b *blockingAgent) Name() string { return "blocking" }

func (b *blockingAgent) RequestAction(ctx context.Context, dc DecisionContext) (Decision, error) {
	<-b.release
	return Decision{Type: core.ActionPass}, nil
}

func (b *blockingAgent) RequestSpeech(ctx context.Context, dc DecisionContext) (<-chan Chunk, error) {
	return make(chan Chunk), nil
}

func chunks(texts ...string) chan Chunk {
	ch := make(chan Chunk, len(texts))
	for _, t := range texts {
		ch <- Chunk{Text: t}
	}
	close(ch)
	return ch
}

func voteContext() DecisionContext {
	return DecisionContext{
		RoomCode:     "ROOM1",
		Seat:         2,
		Phase:        core.PhaseVote,
		Alive:        []int{1, 2, 3},
		LegalActions: []core.ActionType{classic.ActionVote, core.ActionPass},
		LegalTargets: map[core.ActionType][]int{classic.ActionVote: {1, 3}},
	}
}

func drain(t *testing.T, s *Stream) []StreamChunk {
	t.Helper()
	var out []StreamChunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-s.Chunks():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestRequestActionSuccess(t *testing.T) {
	agent := new(mockAgent)
	agent.On("RequestAction", mock.Anything, mock.Anything).
		Return(Decision{Type: classic.ActionVote, Target: 3, Reasoning: "quiet"}, nil)

	o := NewOrchestrator(agent, Config{ActionTimeout: time.Second})
	res := o.RequestAction(context.Background(), voteContext())

	require.NoError(t, res.Err)
	assert.Equal(t, core.Action{Type: classic.ActionVote, Target: 3, Reasoning: "quiet"}, res.Action)
	agent.AssertExpectations(t)
}

func TestRequestActionErrorFallsBack(t *testing.T) {
	agent := new(mockAgent)
	agent.On("RequestAction", mock.Anything, mock.Anything).Return(Decision{}, errors.New("quota exceeded"))

	o := NewOrchestrator(agent, Config{ActionTimeout: time.Second})
	res := o.RequestAction(context.Background(), voteContext())

	require.Error(t, res.Err)
	assert.Equal(t, core.ActionPass, res.Action.Type)
	assert.True(t, res.Action.Fallback)
}

func TestRequestActionIllegalDecisionFallsBack(t *testing.T) {
	agent := new(mockAgent)
	agent.On("RequestAction", mock.Anything, mock.Anything).Return(Decision{Type: classic.ActionVote, Target: 2}, nil)

	o := NewOrchestrator(agent, Config{ActionTimeout: time.Second})
	res := o.RequestAction(context.Background(), voteContext())

	assert.True(t, apperrors.Is(res.Err, apperrors.ErrAIAgent))
	assert.True(t, res.Action.Fallback)
}

func TestRequestActionHardTimeout(t *testing.T) {
	agent := &blockingAgent{release: make(chan struct{})}
	defer close(agent.release)

	o := NewOrchestrator(agent, Config{ActionTimeout: 50 * time.Millisecond})
	start := time.Now()
	res := o.RequestAction(context.Background(), voteContext())

	assert.Less(t, time.Since(start), time.Second, "agent ignoring ctx must not block the caller")
	assert.True(t, apperrors.Is(res.Err, apperrors.ErrAITimeout))
	assert.True(t, res.Action.Fallback)
}

func TestFallbackAtNightPicksLegalTarget(t *testing.T) {
	o := NewOrchestrator(NewRandomAgent(1, 0), Config{})
	dc := DecisionContext{
		Phase:        core.PhaseNight,
		LegalActions: []core.ActionType{classic.ActionKill, core.ActionPass},
		LegalTargets: map[core.ActionType][]int{classic.ActionKill: {3, 4}},
	}
	action := o.Fallback(dc, apperrors.ErrAITimeout)
	assert.Equal(t, classic.ActionKill, action.Type)
	assert.Contains(t, []int{3, 4}, action.Target)
	assert.True(t, action.Fallback)
}

func TestSpeechAccumulates(t *testing.T) {
	agent := new(mockAgent)
	agent.On("RequestSpeech", mock.Anything, mock.Anything).Return(chunks("A", "B", "C"), nil)

	o := NewOrchestrator(agent, Config{ChunkTimeout: time.Second})
	got := drain(t, o.RequestSpeech(context.Background(), voteContext()))

	require.Len(t, got, 4)
	assert.Equal(t, "A", got[0].Accumulated)
	assert.Equal(t, "AB", got[1].Accumulated)
	assert.Equal(t, "ABC", got[2].Accumulated)
	assert.True(t, got[3].Done)
	assert.NoError(t, got[3].Err)
	assert.Equal(t, "ABC", got[3].Accumulated)
	for i, c := range got {
		assert.Equal(t, i+1, c.Seq)
	}
}

func TestSpeechErrorKeepsPartialText(t *testing.T) {
	ch := make(chan Chunk, 3)
	ch <- Chunk{Text: "Hello"}
	ch <- Chunk{Err: errors.New("stream reset")}
	close(ch)

	agent := new(mockAgent)
	agent.On("RequestSpeech", mock.Anything, mock.Anything).Return(ch, nil)

	o := NewOrchestrator(agent, Config{ChunkTimeout: time.Second})
	got := drain(t, o.RequestSpeech(context.Background(), voteContext()))

	last := got[len(got)-1]
	assert.True(t, last.Done)
	assert.True(t, apperrors.Is(last.Err, apperrors.ErrAIAgent))
	assert.Equal(t, "Hello", last.Accumulated)
}

func TestSpeechIdleTimeout(t *testing.T) {
	o := NewOrchestrator(&blockingAgent{}, Config{ChunkTimeout: 30 * time.Millisecond})
	got := drain(t, o.RequestSpeech(context.Background(), voteContext()))

	require.Len(t, got, 1)
	assert.True(t, got[0].Done)
	assert.True(t, apperrors.Is(got[0].Err, apperrors.ErrAITimeout))
}

func TestSpeechCancel(t *testing.T) {
	o := NewOrchestrator(&blockingAgent{}, Config{ChunkTimeout: time.Minute, SpeechTimeout: time.Minute})
	s := o.RequestSpeech(context.Background(), voteContext())
	s.Cancel()
	s.Cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel did not stop the stream")
	}
	got := drain(t, s)
	if len(got) > 0 {
		assert.ErrorIs(t, got[len(got)-1].Err, context.Canceled)
	}
}

func TestRandomAgentSpeechStreamsWords(t *testing.T) {
	o := NewOrchestrator(NewRandomAgent(3, 0), Config{ChunkTimeout: time.Second})
	dc := voteContext()
	dc.Persona = PersonaAnalytical
	got := drain(t, o.RequestSpeech(context.Background(), dc))

	require.Greater(t, len(got), 2)
	last := got[len(got)-1]
	assert.True(t, last.Done)
	assert.Equal(t, got[len(got)-2].Accumulated, last.Accumulated)
	assert.Contains(t, last.Accumulated, "seat")
}

func TestRandomAgentActionIsLegal(t *testing.T) {
	agent := NewRandomAgent(9, 0)
	dc := voteContext()
	for i := 0; i < 20; i++ {
		d, err := agent.RequestAction(context.Background(), dc)
		require.NoError(t, err)
		assert.True(t, dc.Allows(d), "decision %+v", d)
	}
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("```yaml\naction: vote\ntarget: 3\nreasoning: too quiet\n```")
	require.NoError(t, err)
	assert.Equal(t, Decision{Type: classic.ActionVote, Target: 3, Reasoning: "too quiet"}, d)

	_, err = ParseDecision("I think seat 3")
	assert.Error(t, err)
}

func TestBuildContextIncludesHumanSpeech(t *testing.T) {
	e := core.NewEngine("ROOM1", classic.New(classic.WithRoles(classic.RoleVillager, classic.RoleWerewolf, classic.RoleSeer)))
	_, err := e.Start([]core.Participant{
		{Seat: 1, Kind: core.KindHuman},
		{Seat: 2, Kind: core.KindAI, Persona: string(PersonaDeceptive)},
		{Seat: 3, Kind: core.KindHuman},
	}, 1)
	require.NoError(t, err)
	_, err = e.ApplyAction(2, core.Action{Type: core.ActionPass})
	require.NoError(t, err)
	_, err = e.ApplyAction(3, core.Action{Type: classic.ActionInspect, Target: 2})
	require.NoError(t, err)
	_, err = e.ApplyAction(1, core.Action{Type: core.ActionSpeech, Content: "I suspect seat 2"})
	require.NoError(t, err)

	dc := BuildContext(e.State(), e.Rules(), 2)
	assert.Equal(t, PersonaDeceptive, dc.Persona)
	assert.Equal(t, classic.RoleWerewolf, dc.Role)
	assert.Equal(t, []Speech{{Seat: 1, Content: "I suspect seat 2"}}, dc.RoundSpeeches)
	assert.Equal(t, []core.ActionType{core.ActionSpeech, core.ActionPass}, dc.LegalActions)

	seer := BuildContext(e.State(), e.Rules(), 3)
	assert.Contains(t, seer.Notes, "seat 2 is a werewolf")
	for _, line := range dc.Log {
		assert.NotContains(t, line, "is a werewolf", "seer result is private")
	}
}
