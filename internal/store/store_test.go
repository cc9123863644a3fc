package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

func entry(id, seq int64, room string) core.LogEntry {
	return core.LogEntry{
		ID:         id,
		Seq:        seq,
		RoomCode:   room,
		Type:       core.EntrySpeech,
		Seat:       1,
		Phase:      core.PhaseDiscussion,
		Content:    "hello",
		Closed:     true,
		Visibility: core.VisibilityPublic,
		CreatedAt:  time.Unix(1700000000, 0),
	}
}

func TestMemoryLog(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLog()

	require.NoError(t, m.Append(ctx, []core.LogEntry{entry(2, 2, "A"), entry(1, 1, "A"), entry(3, 1, "B")}))
	require.NoError(t, m.Append(ctx, []core.LogEntry{entry(1, 1, "A")}), "重复追加是幂等的")

	got, err := m.List(ctx, "A")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(2), got[1].Seq)

	open := entry(9, 9, "A")
	open.Closed = false
	err = m.Append(ctx, []core.LogEntry{open})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams), "未关闭的条目不能持久化")

	require.NoError(t, m.SaveResult(ctx, GameRecord{RoomCode: "A", Winner: "village"}))
	r, ok := m.Result("A")
	assert.True(t, ok)
	assert.Equal(t, "village", r.Winner)
}

type fakeResults struct {
	n   int
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.n--
	return pgconn.CommandTag{}, r.err
}
func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row         { return nil }
func (r *fakeResults) Close() error              { return nil }

type fakeSender struct {
	mu      sync.Mutex
	batches []int
	ids     []int64
	err     error
}

func (s *fakeSender) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b.Len())
	for _, q := range b.QueuedQueries {
		s.ids = append(s.ids, q.Arguments[0].(int64))
	}
	return &fakeResults{n: b.Len(), err: s.err}
}

func (s *fakeSender) snapshot() ([]int, []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batches...), append([]int64(nil), s.ids...)
}

func TestBatcherFlushesOnSize(t *testing.T) {
	sender := &fakeSender{}
	b := NewEventBatcher(sender, BatcherConfig{BatchSize: 2, FlushInterval: time.Hour})
	b.Start(context.Background())
	defer b.Stop()

	require.NoError(t, b.Enqueue(context.Background(), []core.LogEntry{entry(1, 1, "A"), entry(2, 2, "A")}))
	require.Eventually(t, func() bool {
		batches, _ := sender.snapshot()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)

	batches, ids := sender.snapshot()
	assert.Equal(t, []int{2}, batches)
	assert.Equal(t, []int64{1, 2}, ids, "写入顺序与追加顺序一致")
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	sender := &fakeSender{}
	b := NewEventBatcher(sender, BatcherConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	b.Start(context.Background())
	defer b.Stop()

	require.NoError(t, b.Enqueue(context.Background(), []core.LogEntry{entry(1, 1, "A")}))
	require.Eventually(t, func() bool {
		_, ids := sender.snapshot()
		return len(ids) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatcherStopFlushesRemaining(t *testing.T) {
	sender := &fakeSender{}
	b := NewEventBatcher(sender, BatcherConfig{BatchSize: 100, FlushInterval: time.Hour})
	b.Start(context.Background())

	require.NoError(t, b.Enqueue(context.Background(), []core.LogEntry{entry(1, 1, "A"), entry(2, 2, "A"), entry(3, 3, "A")}))
	b.Stop()
	b.Stop()

	_, ids := sender.snapshot()
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Zero(t, b.QueueSize())
}

func TestBatcherSyncReportsError(t *testing.T) {
	sender := &fakeSender{err: errors.New("disk full")}
	b := NewEventBatcher(sender, BatcherConfig{BatchSize: 1, FlushInterval: time.Hour})
	b.Start(context.Background())
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := b.EnqueueSync(ctx, []core.LogEntry{entry(1, 1, "A")})
	assert.EqualError(t, err, "disk full")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "werewolf:room:ABCD:snapshot", BuildSnapshotKey("ABCD"))
	assert.Equal(t, "werewolf:room:ABCD:presence", BuildPresenceKey("ABCD"))
	assert.Equal(t, "werewolf:room:ABCD:owner", BuildOwnerKey("ABCD"))
}
