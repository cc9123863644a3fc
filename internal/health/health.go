package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service     string `json:"service"`
	NATS        string `json:"nats"`
	Redis       string `json:"redis"`
	Database    string `json:"database"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// Counter 计数接口，房间管理器与连接管理器均满足
type Counter interface {
	Count() int
}

// Checker 健康检查器，依赖均可为 nil
type Checker struct {
	nc          *nats.Conn
	redisClient *redis.Client
	db          *pgxpool.Pool
	rooms       Counter
	conns       Counter
}

// NewChecker 创建健康检查器
func NewChecker(nc *nats.Conn, redisClient *redis.Client, db *pgxpool.Pool, rooms, conns Counter) *Checker {
	return &Checker{
		nc:          nc,
		redisClient: redisClient,
		db:          db,
		rooms:       rooms,
		conns:       conns,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service:  "werewolf-engine",
		NATS:     StateNotConfigured,
		Redis:    StateNotConfigured,
		Database: StateNotConfigured,
	}

	// 检查 NATS
	if h.nc != nil {
		status.NATS = StateDisconnected
		if h.nc.IsConnected() {
			status.NATS = StateConnected
		}
	}

	// 检查 Redis
	if h.redisClient != nil {
		redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		status.Redis = StateDisconnected
		if err := h.redisClient.Ping(redisCtx).Err(); err == nil {
			status.Redis = StateConnected
		}
	}

	// 检查 PostgreSQL
	if h.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		status.Database = StateDisconnected
		if err := h.db.Ping(dbCtx); err == nil {
			status.Database = StateConnected
		}
	}

	if h.rooms != nil {
		status.Rooms = h.rooms.Count()
	}
	if h.conns != nil {
		status.Connections = h.conns.Count()
	}

	return status
}

// healthy 未配置的依赖不影响健康状态
func (s *Status) healthy() bool {
	return s.NATS != StateDisconnected &&
		s.Redis != StateDisconnected &&
		s.Database != StateDisconnected
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).healthy()
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// Ready 就绪探针
func (h *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	if h.IsHealthy(r.Context()) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("Not Ready"))
}

// Mux 健康检查路由
func (h *Checker) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.HandleFunc("/ready", h.Ready)
	return mux
}
