package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.werewolf/internal/task"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

type expiry struct {
	seat    int
	version int64
}

func newTracker(t *testing.T) (*Tracker, *task.Scheduler, *[]expiry) {
	t.Helper()
	sched := task.NewManualScheduler(time.Second)
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Stop)

	var fired []expiry
	tr := NewTracker("ROOM1", 300*time.Second, sched, func(seat int, version int64) {
		fired = append(fired, expiry{seat, version})
	})
	tr.Track(1)
	tr.Track(3)
	return tr, sched, &fired
}

func TestGracePeriodBoundary(t *testing.T) {
	tr, sched, fired := newTracker(t)

	rec, ok := tr.Disconnect(1)
	require.True(t, ok)
	assert.Equal(t, StatusDisconnected, tr.Status(1))

	sched.Advance(299)
	assert.Empty(t, *fired, "boundary minus one tick must not trigger")

	sched.Advance(1)
	require.Len(t, *fired, 1)
	assert.Equal(t, expiry{1, rec.Version}, (*fired)[0])

	assert.True(t, tr.Expire(1, rec.Version))
	assert.False(t, tr.Expire(1, rec.Version), "takeover commits exactly once")
	assert.Equal(t, StatusReplaced, tr.Status(1))

	sched.Advance(600)
	assert.Len(t, *fired, 1)
}

func TestReconnectCancelsTimer(t *testing.T) {
	tr, sched, fired := newTracker(t)

	tr.Disconnect(1)
	sched.Advance(200)

	resumed, err := tr.Reconnect(1)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.True(t, tr.IsConnected(1))

	sched.Advance(500)
	assert.Empty(t, *fired)

	resumed, err = tr.Reconnect(1)
	require.NoError(t, err)
	assert.False(t, resumed, "already connected")
}

func TestRepeatedDisconnectRestartsTimer(t *testing.T) {
	tr, sched, fired := newTracker(t)

	first, _ := tr.Disconnect(1)
	sched.Advance(100)
	second, _ := tr.Disconnect(1)
	assert.Greater(t, second.Version, first.Version)

	sched.Advance(299)
	assert.Empty(t, *fired)
	sched.Advance(1)
	require.Len(t, *fired, 1)

	assert.False(t, tr.Expire(1, first.Version), "stale record version is ignored")
	assert.True(t, tr.Expire(1, second.Version))
}

func TestReplacedSeatCannotReconnect(t *testing.T) {
	tr, sched, _ := newTracker(t)

	rec, _ := tr.Disconnect(3)
	sched.Advance(300)
	require.True(t, tr.Expire(3, rec.Version))

	_, err := tr.Reconnect(3)
	assert.True(t, apperrors.Is(err, apperrors.ErrSeatReplaced))

	_, ok := tr.Disconnect(3)
	assert.False(t, ok)
}

func TestPauseFreezesGrace(t *testing.T) {
	tr, sched, fired := newTracker(t)

	tr.Disconnect(1)
	sched.Advance(288)
	tr.Pause()
	assert.Equal(t, 12*time.Second, tr.Remaining(1))

	sched.Advance(1000)
	assert.Empty(t, *fired)

	tr.Disconnect(3)
	assert.Equal(t, 300*time.Second, tr.Remaining(3), "disconnect during pause waits for resume")

	tr.Resume()
	sched.Advance(11)
	assert.Empty(t, *fired)
	sched.Advance(1)
	require.Len(t, *fired, 1)
	assert.Equal(t, 1, (*fired)[0].seat)
}

func TestExpireWhilePausedIsRefused(t *testing.T) {
	tr, _, _ := newTracker(t)

	rec, _ := tr.Disconnect(1)
	tr.Pause()
	assert.False(t, tr.Expire(1, rec.Version))
	tr.Resume()
	assert.True(t, tr.Expire(1, rec.Version))
}

func TestClose(t *testing.T) {
	tr, sched, fired := newTracker(t)
	tr.Disconnect(1)
	tr.Disconnect(3)
	tr.Close()
	sched.Advance(400)
	assert.Empty(t, *fired)
}

func TestExpiryFiredBeforePauseIsRearmed(t *testing.T) {
	tr, sched, fired := newTracker(t)

	rec, _ := tr.Disconnect(1)
	sched.Advance(300)
	require.Len(t, *fired, 1)

	// 到期回调排队期间房间被暂停
	tr.Pause()
	assert.False(t, tr.Expire(1, rec.Version))

	tr.Resume()
	sched.Advance(1)
	require.Len(t, *fired, 2, "恢复后重新触发")
	assert.True(t, tr.Expire(1, rec.Version))
}
