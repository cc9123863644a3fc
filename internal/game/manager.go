package game

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// ManagerConfig 房间管理配置
type ManagerConfig struct {
	NodeID        string        // 本节点标识，用于房间归属
	MaxRooms      int           // 0 表示不限制
	Retention     time.Duration // 结束的房间保留时长，之后只能从存储查询日志
	LobbyIdle     time.Duration // 大厅空闲超时
	EvictInterval time.Duration // 同时是归属续期间隔，应小于归属 TTL
	Room          RoomConfig
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.NodeID == "" {
		c.NodeID = "engine-1"
	}
	if c.Retention <= 0 {
		c.Retention = 10 * time.Minute
	}
	if c.LobbyIdle <= 0 {
		c.LobbyIdle = 30 * time.Minute
	}
	if c.EvictInterval <= 0 {
		c.EvictInterval = 10 * time.Second
	}
	return c
}

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GameManager 房间管理器
type GameManager struct {
	rooms sync.Map // roomCode -> *Room

	cfg  ManagerConfig
	deps Deps

	evictTicker *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once

	rngMu sync.Mutex
	rng   *rand.Rand

	logger *slog.Logger
}

// NewGameManager 创建房间管理器
func NewGameManager(cfg ManagerConfig, deps Deps) *GameManager {
	cfg = cfg.withDefaults()
	m := &GameManager{
		cfg:         cfg,
		deps:        deps,
		evictTicker: time.NewTicker(cfg.EvictInterval),
		stopChan:    make(chan struct{}),
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 3)),
		logger:      slog.Default().With("component", "GameManager"),
	}

	go m.evictLoop()

	return m
}

// Create 创建房间，code 为空时随机生成
func (m *GameManager) Create(ctx context.Context, code, ruleset string) (*Room, error) {
	if m.cfg.MaxRooms > 0 && m.Count() >= m.cfg.MaxRooms {
		return nil, apperrors.ErrRoomBusy.WithDetail("room limit %d reached", m.cfg.MaxRooms)
	}
	rules, err := NewRuleset(ruleset)
	if err != nil {
		return nil, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = m.newCode()
	}
	if _, ok := m.rooms.Load(code); ok {
		return nil, apperrors.ErrRoomExists.WithDetail("room %s", code)
	}

	if m.deps.Cache != nil {
		owned, err := m.deps.Cache.ClaimRoom(ctx, code, m.cfg.NodeID)
		if err != nil {
			m.logger.Warn("Failed to claim room ownership", "roomCode", code, "error", err)
		} else if !owned {
			return nil, apperrors.ErrRoomExists.WithDetail("room %s is owned by another node", code)
		}
	}

	room := NewRoom(code, rules, m.cfg.Room, m.deps)
	if actual, loaded := m.rooms.LoadOrStore(code, room); loaded {
		room.Close()
		return actual.(*Room), apperrors.ErrRoomExists.WithDetail("room %s", code)
	}

	m.logger.Info("Room created", "roomCode", code, "ruleset", rules.Name())
	return room, nil
}

func (m *GameManager) newCode() string {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	for {
		var b strings.Builder
		for i := 0; i < 6; i++ {
			b.WriteByte(roomCodeAlphabet[m.rng.IntN(len(roomCodeAlphabet))])
		}
		code := b.String()
		if _, ok := m.rooms.Load(code); !ok {
			return code
		}
	}
}

// Get 获取房间
func (m *GameManager) Get(code string) (*Room, error) {
	val, ok := m.rooms.Load(strings.ToUpper(code))
	if !ok {
		return nil, apperrors.ErrRoomNotFound.WithDetail("room %s", code)
	}
	return val.(*Room), nil
}

// Remove 关闭并移除房间
func (m *GameManager) Remove(code string) {
	code = strings.ToUpper(code)
	val, ok := m.rooms.LoadAndDelete(code)
	if !ok {
		return
	}
	val.(*Room).Close()
	m.release(code)
	m.logger.Info("Removed room", "roomCode", code)
}

func (m *GameManager) release(code string) {
	if m.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.deps.Cache.ReleaseRoom(ctx, code, m.cfg.NodeID); err != nil {
		m.logger.Warn("Failed to release room ownership", "roomCode", code, "error", err)
	}
}

// Count 返回当前房间数
func (m *GameManager) Count() int {
	count := 0
	m.rooms.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// Codes 当前房间号，升序
func (m *GameManager) Codes() []string {
	var codes []string
	m.rooms.Range(func(key, value any) bool {
		codes = append(codes, key.(string))
		return true
	})
	sort.Strings(codes)
	return codes
}

// evictLoop 淘汰循环
func (m *GameManager) evictLoop() {
	for {
		select {
		case <-m.evictTicker.C:
			m.evictInactive(time.Now())
			m.renewOwnership()
		case <-m.stopChan:
			m.logger.Info("Evict loop stopped")
			return
		}
	}
}

// evictInactive 淘汰已结束超过保留时长或长期空闲的大厅房间
func (m *GameManager) evictInactive(now time.Time) {
	toEvict := []string{}

	m.rooms.Range(func(key, value any) bool {
		code := key.(string)
		room := value.(*Room)
		v := room.View()
		idle := now.Sub(room.LastActive())

		switch {
		case v.Ended() && idle > m.cfg.Retention:
			toEvict = append(toEvict, code)
		case v.Phase == core.PhaseLobby && idle > m.cfg.LobbyIdle:
			toEvict = append(toEvict, code)
		}
		return true
	})

	for _, code := range toEvict {
		m.Remove(code)
		m.logger.Info("Evicted inactive room", "roomCode", code)
	}
}

// renewOwnership 续期本节点持有的房间归属
func (m *GameManager) renewOwnership() {
	if m.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.rooms.Range(func(key, value any) bool {
		code := key.(string)
		if _, err := m.deps.Cache.ClaimRoom(ctx, code, m.cfg.NodeID); err != nil {
			m.logger.Warn("Failed to renew room ownership", "roomCode", code, "error", err)
		}
		return true
	})
}

// Shutdown 关闭管理器及所有房间
func (m *GameManager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down GameManager")

	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.evictTicker.Stop()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, code := range m.Codes() {
			m.Remove(code)
		}
	}()

	select {
	case <-done:
		m.logger.Info("GameManager shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
