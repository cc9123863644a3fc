package core_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.werewolf/internal/game/classic"
	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

func seats(n int) []core.Participant {
	out := make([]core.Participant, n)
	for i := range out {
		out[i] = core.Participant{Seat: i + 1, Name: "p", Kind: core.KindHuman}
	}
	return out
}

// newGame 3 人局：1 村民，2 狼人，3 预言家
func newGame(t *testing.T) *core.Engine {
	t.Helper()
	e := core.NewEngine("ROOM1", classic.New(classic.WithRoles(classic.RoleVillager, classic.RoleWerewolf, classic.RoleSeer)))
	_, err := e.Start(seats(3), 1)
	require.NoError(t, err)
	return e
}

func named(events []core.Event, name string) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func apply(t *testing.T, e *core.Engine, seat int, action core.Action) []core.Event {
	t.Helper()
	events, err := e.ApplyAction(seat, action)
	require.NoError(t, err, "seat %d %s", seat, action.Type)
	return events
}

func toDiscussion(t *testing.T, e *core.Engine) {
	t.Helper()
	apply(t, e, 2, core.Action{Type: core.ActionPass})
	apply(t, e, 3, core.Action{Type: classic.ActionInspect, Target: 2})
}

func TestStartAssignsRolesPrivately(t *testing.T) {
	e := core.NewEngine("ROOM1", classic.New())
	events, err := e.Start(seats(5), 42)
	require.NoError(t, err)

	started := named(events, proto.EventGameStarted)
	require.Len(t, started, 1)
	assert.True(t, started[0].Public())
	for _, s := range started[0].Data.(proto.GameStarted).Seats {
		assert.Empty(t, s.Role, "public roster must not reveal roles")
	}

	assigned := named(events, proto.EventRoleAssigned)
	require.Len(t, assigned, 5)
	for _, ev := range assigned {
		data := ev.Data.(proto.RoleAssigned)
		assert.Equal(t, []int{data.Seat}, ev.Audience)
	}
	assert.Equal(t, core.PhaseNight, e.Phase())
	assert.Equal(t, 0, e.State().Day)

	_, err = e.Start(seats(5), 42)
	assert.True(t, apperrors.Is(err, apperrors.ErrPhaseViolation))
}

func TestStartRejectsGappedSeats(t *testing.T) {
	e := core.NewEngine("ROOM1", classic.New())
	players := seats(4)
	players[3].Seat = 7
	_, err := e.Start(players, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestApplyActionValidationOrder(t *testing.T) {
	e := newGame(t)

	_, err := e.ApplyAction(1, core.Action{Type: core.ActionPass})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotYourTurn), "villager has no night action")

	_, err = e.ApplyAction(9, core.Action{Type: core.ActionPass})
	assert.True(t, apperrors.Is(err, apperrors.ErrSeatNotFound))

	_, err = e.ApplyAction(2, core.Action{Type: core.ActionSpeech, Content: "x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrPhaseViolation))

	_, err = e.Pause(0)
	require.NoError(t, err)
	_, err = e.ApplyAction(2, core.Action{Type: classic.ActionKill, Target: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrGamePaused), "paused check comes first")

	_, err = e.Resume(0)
	require.NoError(t, err)
	apply(t, e, 2, core.Action{Type: core.ActionPass})
}

func TestFullGameVillageWins(t *testing.T) {
	e := newGame(t)

	toDiscussion(t, e)
	assert.Equal(t, core.PhaseDiscussion, e.Phase())
	assert.Equal(t, 1, e.State().Day)
	assert.Equal(t, []int{1}, e.Due())

	_, err := e.ApplyAction(2, core.Action{Type: core.ActionSpeech, Content: "me first"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotYourTurn))

	events := apply(t, e, 1, core.Action{Type: core.ActionSpeech, Content: "I am a villager"})
	require.Len(t, named(events, proto.EventSpeechEnd), 1)
	assert.Equal(t, []int{2}, e.Due())
	apply(t, e, 2, core.Action{Type: core.ActionSpeech, Content: "me too"})
	apply(t, e, 3, core.Action{Type: core.ActionSpeech, Content: "seat 2 is a werewolf"})

	assert.Equal(t, core.PhaseVote, e.Phase())
	apply(t, e, 1, core.Action{Type: classic.ActionVote, Target: 2})
	apply(t, e, 2, core.Action{Type: classic.ActionVote, Target: 1})
	events = apply(t, e, 3, core.Action{Type: classic.ActionVote, Target: 2})

	completed := named(events, proto.EventGameCompleted)
	require.Len(t, completed, 1)
	data := completed[0].Data.(proto.GameCompleted)
	assert.Equal(t, classic.TeamVillage, data.Result.Winner)
	assert.Equal(t, core.PhaseEnded, e.Phase())
	assert.Empty(t, e.Due())

	_, err = e.ApplyAction(1, core.Action{Type: core.ActionPass})
	assert.True(t, apperrors.Is(err, apperrors.ErrGameEnded))
}

func TestDayIncrementsOncePerNight(t *testing.T) {
	e := core.NewEngine("ROOM1", classic.New(classic.WithRoles(
		classic.RoleVillager, classic.RoleWerewolf, classic.RoleSeer, classic.RoleVillager, classic.RoleVillager)))
	_, err := e.Start(seats(5), 1)
	require.NoError(t, err)

	for day := 1; day <= 3; day++ {
		apply(t, e, 2, core.Action{Type: core.ActionPass})
		apply(t, e, 3, core.Action{Type: core.ActionPass})
		require.Equal(t, core.PhaseDiscussion, e.Phase())
		assert.Equal(t, day, e.State().Day)

		for len(e.Due()) > 0 && e.Phase() == core.PhaseDiscussion {
			apply(t, e, e.Due()[0], core.Action{Type: core.ActionPass})
		}
		assert.Equal(t, day, e.State().Day, "vote does not advance the day")
		for len(e.Due()) > 0 && e.Phase() == core.PhaseVote {
			apply(t, e, e.Due()[0], core.Action{Type: core.ActionPass})
		}
		require.Equal(t, core.PhaseNight, e.Phase())
		assert.Equal(t, day, e.State().Day)
	}
}

func TestDeadSeatsAreRejected(t *testing.T) {
	e := core.NewEngine("ROOM1", classic.New(classic.WithRoles(
		classic.RoleVillager, classic.RoleWerewolf, classic.RoleSeer, classic.RoleVillager, classic.RoleVillager)))
	_, err := e.Start(seats(5), 1)
	require.NoError(t, err)

	apply(t, e, 2, core.Action{Type: classic.ActionKill, Target: 4})
	events := apply(t, e, 3, core.Action{Type: core.ActionPass})
	assert.False(t, e.Participant(4).Alive)

	var deaths []proto.DeathInfo
	for _, ev := range named(events, proto.EventStateUpdated) {
		deaths = append(deaths, ev.Data.(proto.StateUpdated).Delta.Deaths...)
	}
	assert.Equal(t, []proto.DeathInfo{{Seat: 4, Cause: "killed", Role: string(classic.RoleVillager)}}, deaths)

	for len(e.Due()) > 0 && e.Phase() == core.PhaseDiscussion {
		assert.NotEqual(t, 4, e.Due()[0], "dead seat is skipped")
		apply(t, e, e.Due()[0], core.Action{Type: core.ActionPass})
	}

	_, err = e.ApplyAction(4, core.Action{Type: classic.ActionVote, Target: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrSeatDead))

	_, err = e.ApplyAction(e.Due()[0], core.Action{Type: classic.ActionVote, Target: 4})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTarget))
}

func TestNightActionsArePrivate(t *testing.T) {
	e := newGame(t)

	events := apply(t, e, 2, core.Action{Type: classic.ActionKill, Target: 1})
	for _, ev := range events {
		if ev.Name == proto.EventStateUpdated && ev.Public() {
			data := ev.Data.(proto.StateUpdated)
			assert.Equal(t, "progress", data.Delta.Kind)
			assert.Empty(t, data.CurrentTurn.Pending)
		}
	}

	last := e.State().Log[len(e.State().Log)-1]
	assert.Equal(t, core.VisibilityPrivate, last.Visibility)
	assert.Equal(t, []int{2}, last.Audience)
}

func TestStreamingSpeech(t *testing.T) {
	e := newGame(t)
	toDiscussion(t, e)

	_, _, err := e.OpenSpeech(2)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotYourTurn))

	id, events, err := e.OpenSpeech(1)
	require.NoError(t, err)
	require.Len(t, named(events, proto.EventSpeechStart), 1)

	var chunks []proto.SpeechChunk
	for _, acc := range []string{"A", "AB", "ABC"} {
		events, err := e.AppendSpeech(id, acc)
		require.NoError(t, err)
		chunks = append(chunks, events[0].Data.(proto.SpeechChunk))
	}
	assert.Equal(t, "A", chunks[0].Accumulated)
	assert.Equal(t, "AB", chunks[1].Accumulated)
	assert.Equal(t, "ABC", chunks[2].Accumulated)
	assert.Equal(t, "C", chunks[2].Chunk)

	entry, events, err := e.CloseSpeech(id, nil)
	require.NoError(t, err)
	assert.Equal(t, "ABC", entry.Content)
	assert.Equal(t, "ABC", events[0].Data.(proto.SpeechEnd).Content)

	_, err = e.AppendSpeech(id, "ABCD")
	assert.Error(t, err, "closed entries are immutable")

	apply(t, e, 1, core.Action{Type: core.ActionSpeech, Content: entry.Content, EntryID: id})
	speeches := e.State().RoundSpeeches()
	require.Len(t, speeches, 1)
	assert.Equal(t, "ABC", speeches[0].Content)
	assert.Equal(t, []int{2}, e.Due())
}

func TestViewSharesClosedEntries(t *testing.T) {
	e := newGame(t)
	toDiscussion(t, e)

	before := e.View()
	require.NotEmpty(t, before.Log)

	id, _, err := e.OpenSpeech(1)
	require.NoError(t, err)
	_, err = e.AppendSpeech(id, "A")
	require.NoError(t, err)
	streaming := e.View()

	assert.Same(t, &before.Log[0], &streaming.Log[0], "已关闭的条目在视图之间共享")
	assert.Len(t, streaming.Log, len(before.Log), "流式条目不进入共享前缀")
	entries := streaming.Entries()
	require.Len(t, entries, len(before.Log)+1)
	assert.Equal(t, "A", entries[len(entries)-1].Content)
	assert.False(t, entries[len(entries)-1].Closed)

	_, err = e.AppendSpeech(id, "AB")
	require.NoError(t, err)
	assert.Equal(t, "A", streaming.Entries()[len(entries)-1].Content, "旧视图不受后续修改影响")

	_, _, err = e.CloseSpeech(id, nil)
	require.NoError(t, err)
	closed := e.View()
	require.Len(t, closed.Log, len(before.Log)+1)
	assert.Equal(t, "AB", closed.Log[len(closed.Log)-1].Content)
	assert.Len(t, streaming.Log, len(before.Log))
}

func TestPauseResume(t *testing.T) {
	e := newGame(t)

	_, err := e.Resume(0)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotPaused))

	events, err := e.Pause(12 * time.Second)
	require.NoError(t, err)
	data := events[0].Data.(proto.PauseChanged)
	assert.Equal(t, string(core.PhaseNight), data.ResumePhase)
	assert.Equal(t, int64(12000), data.TurnRemainingMs)
	assert.Equal(t, core.PhasePaused, e.Phase())

	_, err = e.Pause(0)
	assert.True(t, apperrors.Is(err, apperrors.ErrGamePaused))

	_, err = e.Resume(0)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseNight, e.Phase())
}

func TestConvertToAI(t *testing.T) {
	e := newGame(t)

	events, err := e.ConvertToAI(1, "analytical")
	require.NoError(t, err)
	require.Len(t, named(events, proto.EventPlayerReplaced), 1)

	p := e.Participant(1)
	assert.Equal(t, core.KindAI, p.Kind)
	assert.True(t, p.Alive)
	assert.Equal(t, classic.RoleVillager, p.Role)
	assert.NotNil(t, p.ReplacedAt)

	_, err = e.ConvertToAI(1, "analytical")
	assert.True(t, apperrors.Is(err, apperrors.ErrSeatReplaced))
}

func TestStop(t *testing.T) {
	e := newGame(t)
	events := e.Stop("terminated")
	require.Len(t, named(events, proto.EventGameCompleted), 1)
	assert.Equal(t, core.PhaseEnded, e.Phase())
	assert.Nil(t, e.Stop("again"))
}

func TestSnapshotIsStable(t *testing.T) {
	e := newGame(t)
	toDiscussion(t, e)

	view := e.View()
	first := view.Snapshot(1, 10, time.Now())
	second := e.View().Snapshot(1, 10, time.Now().Add(time.Second))

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(proto.Snapshot{}, "TakenAt")); diff != "" {
		t.Errorf("snapshot changed without a mutation (-first +second):\n%s", diff)
	}
	assert.Equal(t, string(classic.RoleVillager), first.OwnRole)
	assert.Equal(t, 1, first.Turn.Current)
	for _, s := range first.Seats {
		if s.Seat != 1 {
			assert.Empty(t, s.Role)
		}
	}
	for _, item := range first.RecentLog {
		assert.Equal(t, string(core.VisibilityPublic), item.Visibility)
	}

	apply(t, e, 1, core.Action{Type: core.ActionSpeech, Content: "hi"})
	assert.Equal(t, core.PhaseDiscussion, view.Phase, "views are detached from later mutations")
	assert.Equal(t, 1, view.Cursor.Current)
}

func TestDrainSealedOnce(t *testing.T) {
	e := newGame(t)
	sealed := e.DrainSealed()
	assert.NotEmpty(t, sealed)
	for _, entry := range sealed {
		assert.True(t, entry.Closed)
	}
	assert.Empty(t, e.DrainSealed())
}

func TestFilterLog(t *testing.T) {
	entries := []core.LogEntry{
		{ID: 1, Type: core.EntrySpeech, Visibility: core.VisibilityPublic, Markers: map[string]string{core.MarkerFallback: "timeout"}},
		{ID: 2, Type: core.EntryAIError, Visibility: core.VisibilityInternal},
		{ID: 3, Type: core.EntryPrivate, Visibility: core.VisibilityPrivate, Audience: []int{1}},
	}

	basic := core.FilterLog(entries, core.DetailBasic, false)
	require.Len(t, basic, 1)
	assert.Nil(t, basic[0].Markers)

	detailed := core.FilterLog(entries, core.DetailDetailed, false)
	require.Len(t, detailed, 2)
	assert.Equal(t, "timeout", detailed[0].Markers[core.MarkerFallback])

	assert.Len(t, core.FilterLog(entries, core.DetailDetailed, true), 3)
	assert.Equal(t, core.DetailBasic, core.ParseDetail("verbose"))
}
