package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.werewolf/internal/game/core"
)

// PostgresLog 基于 PostgreSQL 的日志存储
// 追加走批量写入器，结算与查询直接访问连接池
type PostgresLog struct {
	db      *pgxpool.Pool
	batcher *EventBatcher
	logger  *slog.Logger
}

// NewPostgresLog 创建存储，调用方负责 Start/Stop
func NewPostgresLog(db *pgxpool.Pool, config BatcherConfig) *PostgresLog {
	return &PostgresLog{
		db:      db,
		batcher: NewEventBatcher(db, config),
		logger:  slog.Default().With("component", "PostgresLog"),
	}
}

// Start 启动批量写入
func (p *PostgresLog) Start(ctx context.Context) {
	p.batcher.Start(ctx)
}

// Stop 刷入剩余条目
func (p *PostgresLog) Stop() {
	p.batcher.Stop()
}

// Append 异步追加
func (p *PostgresLog) Append(ctx context.Context, entries []core.LogEntry) error {
	return p.batcher.Enqueue(ctx, entries)
}

// AppendSync 追加并等待写入完成
func (p *PostgresLog) AppendSync(ctx context.Context, entries []core.LogEntry) error {
	return p.batcher.EnqueueSync(ctx, entries)
}

// List 按序号返回房间全部条目
func (p *PostgresLog) List(ctx context.Context, roomCode string) ([]core.LogEntry, error) {
	query := `
		SELECT id, room_code, seq, entry_type, seat, day, phase, content, visibility, audience, markers, created_at
		FROM game_log WHERE room_code = $1 ORDER BY seq
	`

	rows, err := p.db.Query(ctx, query, roomCode)
	if err != nil {
		return nil, fmt.Errorf("query game log: %w", err)
	}
	defer rows.Close()

	var entries []core.LogEntry
	for rows.Next() {
		var (
			e                      core.LogEntry
			typ, phase, visibility string
		)
		if err := rows.Scan(
			&e.ID,
			&e.RoomCode,
			&e.Seq,
			&typ,
			&e.Seat,
			&e.Day,
			&phase,
			&e.Content,
			&visibility,
			&e.Audience,
			&e.Markers,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan game log: %w", err)
		}
		e.Type = core.EntryType(typ)
		e.Phase = core.Phase(phase)
		e.Visibility = core.Visibility(visibility)
		e.Closed = true
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveResult 写入结算，重复写入覆盖
func (p *PostgresLog) SaveResult(ctx context.Context, r GameRecord) error {
	query := `
		INSERT INTO game_results (room_code, ruleset, winner, reason, survivors, seats, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (room_code) DO UPDATE SET
			winner = EXCLUDED.winner,
			reason = EXCLUDED.reason,
			survivors = EXCLUDED.survivors,
			seats = EXCLUDED.seats,
			ended_at = EXCLUDED.ended_at
	`
	_, err := p.db.Exec(ctx, query,
		r.RoomCode,
		r.Ruleset,
		r.Winner,
		r.Reason,
		r.Survivors,
		r.Seats,
		r.StartedAt,
		r.EndedAt,
	)
	if err != nil {
		p.logger.Error("Failed to save game result", "roomCode", r.RoomCode, "error", err)
		return fmt.Errorf("save game result: %w", err)
	}
	return nil
}

// LoadResult 读取结算
func (p *PostgresLog) LoadResult(ctx context.Context, roomCode string) (*GameRecord, error) {
	query := `
		SELECT room_code, ruleset, winner, reason, survivors, seats, started_at, ended_at
		FROM game_results WHERE room_code = $1
	`
	var r GameRecord
	err := p.db.QueryRow(ctx, query, roomCode).Scan(
		&r.RoomCode,
		&r.Ruleset,
		&r.Winner,
		&r.Reason,
		&r.Survivors,
		&r.Seats,
		&r.StartedAt,
		&r.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
