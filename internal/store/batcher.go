package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"sudooom.im.werewolf/internal/game/core"
)

// BatcherConfig 批量写入配置
type BatcherConfig struct {
	BatchSize     int           // 批量大小阈值
	FlushInterval time.Duration // 强制刷新间隔
}

// BatchSender 批量执行语句，*pgxpool.Pool 满足该接口
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// entryToSave 待写入的日志条目
type entryToSave struct {
	entry  core.LogEntry
	result chan error // 同步写入时通知结果
}

// EventBatcher 日志条目批量写入器
type EventBatcher struct {
	db       BatchSender
	config   BatcherConfig
	queue    chan *entryToSave
	logger   *slog.Logger
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

const insertEntrySQL = `
	INSERT INTO game_log (id, room_code, seq, entry_type, seat, day, phase, content, visibility, audience, markers, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO NOTHING
`

// NewEventBatcher 创建批量写入器
func NewEventBatcher(db BatchSender, config BatcherConfig) *EventBatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}

	return &EventBatcher{
		db:       db,
		config:   config,
		queue:    make(chan *entryToSave, config.BatchSize*10),
		logger:   slog.Default().With("component", "EventBatcher"),
		stopChan: make(chan struct{}),
	}
}

// Start 启动批量写入器
func (b *EventBatcher) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.worker(ctx)
	b.logger.Info("EventBatcher started",
		"batchSize", b.config.BatchSize,
		"flushInterval", b.config.FlushInterval,
	)
}

// Stop 停止并刷入剩余条目
func (b *EventBatcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
		b.logger.Info("EventBatcher stopped")
	})
}

// Enqueue 异步写入，队列满时等待
func (b *EventBatcher) Enqueue(ctx context.Context, entries []core.LogEntry) error {
	for _, e := range entries {
		item := &entryToSave{entry: e}
		select {
		case b.queue <- item:
		default:
			b.logger.Warn("Event batch queue full, waiting...", "roomCode", e.RoomCode)
			select {
			case b.queue <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// EnqueueSync 写入并等待全部完成，返回第一个错误
func (b *EventBatcher) EnqueueSync(ctx context.Context, entries []core.LogEntry) error {
	items := make([]*entryToSave, 0, len(entries))
	for _, e := range entries {
		item := &entryToSave{entry: e, result: make(chan error, 1)}
		select {
		case b.queue <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
		items = append(items, item)
	}

	var firstErr error
	for _, item := range items {
		select {
		case err := <-item.result:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return firstErr
}

// worker 后台工作协程
func (b *EventBatcher) worker(ctx context.Context) {
	defer b.wg.Done()

	batch := make([]*entryToSave, 0, b.config.BatchSize)
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			batch = b.drain(batch)
			b.flush(context.Background(), batch)
			return
		case <-b.stopChan:
			batch = b.drain(batch)
			b.flush(context.Background(), batch)
			return
		case item := <-b.queue:
			batch = append(batch, item)
			if len(batch) >= b.config.BatchSize {
				b.flush(ctx, batch)
				batch = make([]*entryToSave, 0, b.config.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = make([]*entryToSave, 0, b.config.BatchSize)
			}
		}
	}
}

// drain 取出队列中剩余条目
func (b *EventBatcher) drain(batch []*entryToSave) []*entryToSave {
	for {
		select {
		case item := <-b.queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}
}

// flush 批量写入数据库
func (b *EventBatcher) flush(ctx context.Context, batch []*entryToSave) {
	if len(batch) == 0 {
		return
	}

	startTime := time.Now()

	pgBatch := &pgx.Batch{}
	for _, item := range batch {
		e := item.entry
		pgBatch.Queue(insertEntrySQL,
			e.ID,
			e.RoomCode,
			e.Seq,
			string(e.Type),
			e.Seat,
			e.Day,
			string(e.Phase),
			e.Content,
			string(e.Visibility),
			e.Audience,
			e.Markers,
			e.CreatedAt,
		)
	}

	br := b.db.SendBatch(ctx, pgBatch)
	defer func() {
		if err := br.Close(); err != nil {
			b.logger.Error("Failed to close batch results", "error", err)
		}
	}()

	var batchErr error
	for _, item := range batch {
		_, err := br.Exec()
		if err != nil {
			batchErr = err
			b.logger.Error("Failed to save log entry in batch",
				"entryId", item.entry.ID,
				"roomCode", item.entry.RoomCode,
				"error", err,
			)
		}
		if item.result != nil {
			select {
			case item.result <- err:
			default:
			}
		}
	}

	elapsed := time.Since(startTime)
	if batchErr != nil {
		b.logger.Error("Batch flush completed with errors", "count", len(batch), "elapsed", elapsed)
	} else {
		b.logger.Debug("Batch flush completed", "count", len(batch), "elapsed", elapsed)
	}
}

// QueueSize 当前队列长度
func (b *EventBatcher) QueueSize() int {
	return len(b.queue)
}
