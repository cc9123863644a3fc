package classic

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

func newState(phase core.Phase, roles ...core.Role) *core.GameState {
	s := core.NewGameState("ROOM1", Name)
	s.Phase = phase
	s.Day = 1
	for i, role := range roles {
		s.Participants = append(s.Participants, &core.Participant{
			Seat:  i + 1,
			Kind:  core.KindHuman,
			Alive: true,
			Role:  role,
		})
	}
	return s
}

func record(seat int, action core.ActionType, target int) core.ActionRecord {
	return core.ActionRecord{Seat: seat, Action: core.Action{Type: action, Target: target}}
}

func TestDeck(t *testing.T) {
	tests := []struct {
		count  int
		wolves int
		guard  bool
	}{
		{3, 1, false},
		{5, 1, false},
		{6, 1, true},
		{8, 2, true},
		{12, 3, true},
	}
	for _, tt := range tests {
		deck := Deck(tt.count)
		assert.Len(t, deck, tt.count)
		wolves, guards, seers := 0, 0, 0
		for _, r := range deck {
			switch r {
			case RoleWerewolf:
				wolves++
			case RoleGuard:
				guards++
			case RoleSeer:
				seers++
			}
		}
		assert.Equal(t, tt.wolves, wolves, "count=%d", tt.count)
		assert.Equal(t, 1, seers, "count=%d", tt.count)
		assert.Equal(t, tt.guard, guards == 1, "count=%d", tt.count)
	}
}

func TestAssignRoles(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	_, err := New().AssignRoles(2, rng)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))

	roles, err := New().AssignRoles(7, rng)
	require.NoError(t, err)
	assert.ElementsMatch(t, Deck(7), roles)

	fixed := New(WithRoles(RoleVillager, RoleWerewolf, RoleSeer))
	roles, err = fixed.AssignRoles(3, rng)
	require.NoError(t, err)
	assert.Equal(t, []core.Role{RoleVillager, RoleWerewolf, RoleSeer}, roles)

	_, err = fixed.AssignRoles(4, rng)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	r := New()
	night := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleGuard, RoleVillager, RoleVillager, RoleWerewolf)
	vote := newState(core.PhaseVote, RoleWerewolf, RoleSeer, RoleVillager)

	tests := []struct {
		name   string
		state  *core.GameState
		seat   int
		action core.Action
		want   *apperrors.AppError
	}{
		{"wolf kills villager", night, 1, core.Action{Type: ActionKill, Target: 4}, nil},
		{"wolf cannot kill wolf", night, 1, core.Action{Type: ActionKill, Target: 6}, apperrors.ErrInvalidTarget},
		{"villager cannot kill", night, 4, core.Action{Type: ActionKill, Target: 2}, apperrors.ErrInvalidAction},
		{"seer inspects", night, 2, core.Action{Type: ActionInspect, Target: 1}, nil},
		{"seer cannot inspect self", night, 2, core.Action{Type: ActionInspect, Target: 2}, apperrors.ErrInvalidTarget},
		{"kill needs target", night, 1, core.Action{Type: ActionKill}, apperrors.ErrInvalidTarget},
		{"vote at night", night, 1, core.Action{Type: ActionVote, Target: 2}, apperrors.ErrPhaseViolation},
		{"speech at night", night, 1, core.Action{Type: core.ActionSpeech, Content: "hi"}, apperrors.ErrPhaseViolation},
		{"pass always legal", night, 4, core.Action{Type: core.ActionPass}, nil},
		{"vote for other", vote, 2, core.Action{Type: ActionVote, Target: 1}, nil},
		{"vote for self", vote, 2, core.Action{Type: ActionVote, Target: 2}, apperrors.ErrInvalidTarget},
		{"unknown action", vote, 2, core.Action{Type: "dance"}, apperrors.ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.state, tt.seat, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestGuardCannotRepeat(t *testing.T) {
	r := New()
	s := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleGuard, RoleVillager, RoleVillager, RoleVillager)
	s.Records = []core.ActionRecord{record(3, ActionProtect, 4)}
	r.Resolve(s, core.PhaseNight)

	assert.Equal(t, 4, s.Memory[memoryGuardLast])
	err := r.Validate(s, 3, core.Action{Type: ActionProtect, Target: 4})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTarget))
	assert.NoError(t, r.Validate(s, 3, core.Action{Type: ActionProtect, Target: 5}))
}

func TestResolveNight(t *testing.T) {
	r := New()

	t.Run("kill", func(t *testing.T) {
		s := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleVillager, RoleVillager)
		s.Records = []core.ActionRecord{record(1, ActionKill, 3), record(2, ActionInspect, 1)}
		res := r.Resolve(s, core.PhaseNight)

		require.Len(t, res.Deaths, 1)
		assert.Equal(t, core.Death{Seat: 3, Cause: "killed"}, res.Deaths[0])
		require.Len(t, res.Notes, 1)
		assert.Equal(t, 2, res.Notes[0].Seat)
		assert.Equal(t, "seat 1 is a werewolf", res.Notes[0].Content)
	})

	t.Run("protected", func(t *testing.T) {
		s := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleGuard, RoleVillager, RoleVillager, RoleVillager)
		s.Records = []core.ActionRecord{record(1, ActionKill, 4), record(3, ActionProtect, 4)}
		res := r.Resolve(s, core.PhaseNight)

		assert.Empty(t, res.Deaths)
		assert.Equal(t, []string{"the night passed peacefully"}, res.Announcements)
	})

	t.Run("all pass", func(t *testing.T) {
		s := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleVillager)
		s.Records = []core.ActionRecord{record(1, core.ActionPass, 0)}
		assert.Empty(t, r.Resolve(s, core.PhaseNight).Deaths)
	})
}

func TestResolveVote(t *testing.T) {
	r := New()

	s := newState(core.PhaseVote, RoleWerewolf, RoleSeer, RoleVillager, RoleVillager)
	s.Records = []core.ActionRecord{record(2, ActionVote, 1), record(3, ActionVote, 1), record(1, ActionVote, 2), record(4, core.ActionPass, 0)}
	res := r.Resolve(s, core.PhaseVote)
	require.Len(t, res.Deaths, 1)
	assert.Equal(t, 1, res.Deaths[0].Seat)

	s.Records = []core.ActionRecord{record(2, ActionVote, 1), record(1, ActionVote, 2)}
	res = r.Resolve(s, core.PhaseVote)
	assert.Empty(t, res.Deaths)
	assert.Equal(t, []string{"no one was voted out"}, res.Announcements)
}

func TestTally(t *testing.T) {
	seat, tied := Tally([]core.ActionRecord{record(1, ActionVote, 3), record(2, ActionVote, 2)})
	assert.Equal(t, 2, seat)
	assert.True(t, tied)

	seat, tied = Tally(nil)
	assert.Equal(t, 0, seat)
	assert.False(t, tied)
}

func TestCheckWinner(t *testing.T) {
	r := New()

	s := newState(core.PhaseVote, RoleWerewolf, RoleSeer, RoleVillager)
	_, ok := r.CheckWinner(s)
	assert.False(t, ok)

	s.Participants[0].Alive = false
	outcome, ok := r.CheckWinner(s)
	assert.True(t, ok)
	assert.Equal(t, TeamVillage, outcome.Winner)

	s.Participants[0].Alive = true
	s.Participants[1].Alive = false
	outcome, ok = r.CheckWinner(s)
	assert.True(t, ok)
	assert.Equal(t, TeamWerewolf, outcome.Winner)
}

func TestPlan(t *testing.T) {
	r := New()
	s := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleVillager, RoleGuard)

	plan, ok := r.Plan(s, core.PhaseNight, 0)
	require.True(t, ok)
	assert.Equal(t, core.StepConcurrent, plan.Mode)
	assert.Equal(t, []int{1, 2, 4}, plan.Actors)

	_, ok = r.Plan(s, core.PhaseNight, 1)
	assert.False(t, ok)

	s.Day = 2
	plan, ok = r.Plan(s, core.PhaseDiscussion, 0)
	require.True(t, ok)
	assert.Equal(t, core.StepSequential, plan.Mode)
	assert.Equal(t, core.TurnSpeech, plan.Kind)
	assert.Equal(t, 2, plan.Start)
}

func TestAudience(t *testing.T) {
	r := New()
	s := newState(core.PhaseNight, RoleWerewolf, RoleSeer, RoleVillager, RoleWerewolf)

	assert.Equal(t, []int{1, 4}, r.Audience(s, 1, core.Action{Type: ActionKill, Target: 3}))
	assert.Equal(t, []int{2}, r.Audience(s, 2, core.Action{Type: ActionInspect, Target: 1}))

	s.Phase = core.PhaseVote
	assert.Nil(t, r.Audience(s, 2, core.Action{Type: ActionVote, Target: 1}))
}
