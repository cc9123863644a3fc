package store

import (
	"fmt"
	"time"
)

const (
	// RoomKeyPrefix 房间 Redis Key 前缀
	RoomKeyPrefix = "werewolf:room:"

	// SnapshotTTL 公开快照 TTL
	SnapshotTTL = 2 * time.Hour

	// OwnerTTL 房间归属 TTL，持有节点需定期续期
	OwnerTTL = 30 * time.Second
)

// BuildSnapshotKey 公开快照 Key
// Key: werewolf:room:{code}:snapshot
func BuildSnapshotKey(roomCode string) string {
	return fmt.Sprintf("%s%s:snapshot", RoomKeyPrefix, roomCode)
}

// BuildPresenceKey 座位在线状态 Hash Key
// Key: werewolf:room:{code}:presence
func BuildPresenceKey(roomCode string) string {
	return fmt.Sprintf("%s%s:presence", RoomKeyPrefix, roomCode)
}

// BuildOwnerKey 房间归属节点 Key
// Key: werewolf:room:{code}:owner
func BuildOwnerKey(roomCode string) string {
	return fmt.Sprintf("%s%s:owner", RoomKeyPrefix, roomCode)
}
