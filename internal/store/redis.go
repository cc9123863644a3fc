package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sudooom.im.werewolf/pkg/proto"
)

// RedisCache 房间快照、在线状态与归属节点
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建缓存
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// SaveSnapshot 保存公开快照
func (c *RedisCache) SaveSnapshot(ctx context.Context, snap proto.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, BuildSnapshotKey(snap.RoomCode), data, SnapshotTTL).Err()
}

// LoadSnapshot 读取公开快照，不存在时返回 nil
func (c *RedisCache) LoadSnapshot(ctx context.Context, roomCode string) (*proto.Snapshot, error) {
	data, err := c.client.Get(ctx, BuildSnapshotKey(roomCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap proto.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetPresence 记录座位在线状态
func (c *RedisCache) SetPresence(ctx context.Context, roomCode string, seat int, status string) error {
	key := BuildPresenceKey(roomCode)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(seat), status)
	pipe.Expire(ctx, key, SnapshotTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Presence 读取房间全部座位的在线状态
func (c *RedisCache) Presence(ctx context.Context, roomCode string) (map[int]string, error) {
	raw, err := c.client.HGetAll(ctx, BuildPresenceKey(roomCode)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		seat, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[seat] = v
	}
	return out, nil
}

// ClaimRoom 声明房间由本节点驱动；已被本节点持有时续期
func (c *RedisCache) ClaimRoom(ctx context.Context, roomCode, nodeID string) (bool, error) {
	key := BuildOwnerKey(roomCode)
	ok, err := c.client.SetNX(ctx, key, nodeID, OwnerTTL).Result()
	if err != nil || ok {
		return ok, err
	}
	owner, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return c.client.SetNX(ctx, key, nodeID, OwnerTTL).Result()
	}
	if err != nil {
		return false, err
	}
	if owner != nodeID {
		return false, nil
	}
	return true, c.client.Expire(ctx, key, OwnerTTL).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseRoom 释放本节点持有的房间
func (c *RedisCache) ReleaseRoom(ctx context.Context, roomCode, nodeID string) error {
	return releaseScript.Run(ctx, c.client, []string{BuildOwnerKey(roomCode)}, nodeID).Err()
}
