package store

import (
	"context"
	"time"

	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/pkg/proto"
)

// LogStore 已关闭日志条目的持久化
// 条目按 ID 幂等写入，重复追加不会产生重复记录
type LogStore interface {
	Append(ctx context.Context, entries []core.LogEntry) error
	List(ctx context.Context, roomCode string) ([]core.LogEntry, error)
	SaveResult(ctx context.Context, record GameRecord) error
}

// GameRecord 一局游戏的结算记录
type GameRecord struct {
	RoomCode  string           `json:"roomCode"`
	Ruleset   string           `json:"ruleset"`
	Winner    string           `json:"winner"`
	Reason    string           `json:"reason"`
	Survivors []int            `json:"survivors"`
	Seats     []proto.SeatInfo `json:"seats"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
}

// RoomCache 房间的跨节点共享状态
type RoomCache interface {
	SaveSnapshot(ctx context.Context, snap proto.Snapshot) error
	LoadSnapshot(ctx context.Context, roomCode string) (*proto.Snapshot, error)
	SetPresence(ctx context.Context, roomCode string, seat int, status string) error
	ClaimRoom(ctx context.Context, roomCode, nodeID string) (bool, error)
	ReleaseRoom(ctx context.Context, roomCode, nodeID string) error
}
