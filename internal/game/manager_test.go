package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.werewolf/internal/game/classic"
	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/internal/store"
	"sudooom.im.werewolf/internal/task"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

func newManager(t *testing.T, mem *store.MemoryLog) *GameManager {
	t.Helper()
	sched := task.NewManualScheduler(time.Second)
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Stop)

	m := NewGameManager(ManagerConfig{
		Retention:     time.Minute,
		LobbyIdle:     time.Hour,
		EvictInterval: time.Hour,
	}, Deps{Timers: sched, Store: mem})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestRulesetRegistry(t *testing.T) {
	assert.Contains(t, Rulesets(), classic.Name)

	rules, err := NewRuleset("")
	require.NoError(t, err)
	assert.Equal(t, classic.Name, rules.Name())

	_, err = NewRuleset("ultimate")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestManagerCreateGetRemove(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	room, err := m.Create(ctx, "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", room.Code())

	_, err = m.Create(ctx, "ABC123", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrRoomExists))

	got, err := m.Get("abc123")
	require.NoError(t, err)
	assert.Same(t, room, got)

	generated, err := m.Create(ctx, "", classic.Name)
	require.NoError(t, err)
	assert.Len(t, generated.Code(), 6)
	assert.Equal(t, 2, m.Count())

	m.Remove("ABC123")
	select {
	case <-room.Done():
	case <-time.After(time.Second):
		t.Fatal("room not closed on remove")
	}
	_, err = m.Get("ABC123")
	assert.True(t, apperrors.Is(err, apperrors.ErrRoomNotFound))
	assert.Equal(t, []string{generated.Code()}, m.Codes())
}

func TestManagerEvictsFinishedRooms(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	finished, err := m.Create(ctx, "DONE", "")
	require.NoError(t, err)
	require.NoError(t, finished.Start(ctx, []core.Participant{human(1, "u1"), human(2, "u2"), human(3, "u3")}, 1))
	require.NoError(t, finished.exec(ctx, func() error {
		finished.emit(finished.engine.Stop("test"))
		return nil
	}))
	require.True(t, finished.View().Ended())

	_, err = m.Create(ctx, "LOBBY", "")
	require.NoError(t, err)

	m.evictInactive(time.Now())
	assert.Equal(t, 2, m.Count(), "保留期内不淘汰")

	m.evictInactive(time.Now().Add(2 * time.Minute))
	assert.Equal(t, []string{"LOBBY"}, m.Codes())

	m.evictInactive(time.Now().Add(2 * time.Hour))
	assert.Zero(t, m.Count(), "空闲大厅同样淘汰")
}

func TestServiceLogFallsBackToStore(t *testing.T) {
	mem := store.NewMemoryLog()
	m := newManager(t, mem)
	svc := NewGameService(m, mem)
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "LOGS", "")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(ctx, "LOGS", StartRequest{
		Seats: []SeatSpec{
			{Seat: 1, Name: "a", UserID: "u1"},
			{Seat: 2, Name: "b", UserID: "u2"},
			{Seat: 3, Name: "c", UserID: "u3"},
		},
		Seed: 7,
	}))

	live, err := svc.Log(ctx, "LOGS", core.DetailBasic)
	require.NoError(t, err)
	require.NotEmpty(t, live)

	require.NoError(t, svc.Stop(ctx, "LOGS", ""))
	_, err = m.Get("LOGS")
	assert.True(t, apperrors.Is(err, apperrors.ErrRoomNotFound))

	basic, err := svc.Log(ctx, "LOGS", core.DetailBasic)
	require.NoError(t, err)
	for _, it := range basic {
		assert.Equal(t, string(core.VisibilityPublic), it.Visibility)
		assert.Empty(t, it.Markers)
	}

	detailed, err := svc.Log(ctx, "LOGS", core.DetailDetailed)
	require.NoError(t, err)
	assert.Greater(t, len(detailed), len(basic), "结束后详细日志包含私有条目")

	_, err = svc.Log(ctx, "NOPE", core.DetailBasic)
	assert.True(t, apperrors.Is(err, apperrors.ErrRoomNotFound))
}

func TestServiceDispatch(t *testing.T) {
	m := newManager(t, nil)
	svc := NewGameService(m, nil)
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "PLAY", "")
	require.NoError(t, err)
	err = svc.StartGame(ctx, "PLAY", StartRequest{Seats: []SeatSpec{{Seat: 1, Name: "a", Kind: "robot"}}})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))

	require.NoError(t, svc.StartGame(ctx, "PLAY", StartRequest{
		Seats: []SeatSpec{
			{Seat: 1, Name: "a", UserID: "u1"},
			{Seat: 2, Name: "b", UserID: "u2"},
			{Seat: 3, Name: "c", UserID: "u3"},
			{Seat: 4, Name: "d", UserID: "u4"},
			{Seat: 5, Name: "e", UserID: "u5"},
		},
		Seed: 3,
	}))

	err = svc.Dispatch(ctx, "stranger", proto.Request{Type: proto.TypePauseGame, RoomCode: "PLAY"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotSeated))

	err = svc.Dispatch(ctx, "u1", proto.Request{Type: proto.TypeGameAction, RoomCode: "PLAY"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))

	require.NoError(t, svc.Dispatch(ctx, "u1", proto.Request{Type: proto.TypePauseGame, RoomCode: "PLAY"}))
	err = svc.Dispatch(ctx, "u2", proto.Request{Type: proto.TypePlayerSpeech, RoomCode: "PLAY", Content: "hi"})
	assert.True(t, apperrors.Is(err, apperrors.ErrGamePaused))
	require.NoError(t, svc.Dispatch(ctx, "u2", proto.Request{Type: proto.TypeResumeGame, RoomCode: "PLAY"}))

	snap, err := svc.Snapshot(ctx, "PLAY", "u3")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.OwnSeat)
	assert.NotEmpty(t, snap.OwnRole)

	err = svc.Dispatch(ctx, "u1", proto.Request{Type: "dance", RoomCode: "PLAY"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}
