package connection

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatChecker 定期 ping 所有连接，关闭超时未响应的连接
type HeartbeatChecker struct {
	manager       *Manager
	timeout       time.Duration
	checkInterval time.Duration
	logger        *slog.Logger
}

// NewHeartbeatChecker 创建心跳检测器
func NewHeartbeatChecker(manager *Manager, timeout, checkInterval time.Duration) *HeartbeatChecker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}

	return &HeartbeatChecker{
		manager:       manager,
		timeout:       timeout,
		checkInterval: checkInterval,
		logger:        slog.Default().With("component", "HeartbeatChecker"),
	}
}

// Start 启动心跳检测（阻塞，应在 goroutine 中调用）
func (h *HeartbeatChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.Info("Heartbeat checker started",
		"timeout", h.timeout,
		"check_interval", h.checkInterval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Heartbeat checker stopped")
			return
		case <-ticker.C:
			h.checkConnections(time.Now())
		}
	}
}

// checkConnections 关闭超时连接，其余连接发送 ping
// 连接关闭后读循环退出，由读循环负责离开房间
func (h *HeartbeatChecker) checkConnections(now time.Time) int {
	conns := h.manager.GetAllConnections()
	timeoutCount := 0

	for _, conn := range conns {
		lastActive := conn.LastActiveTime()
		if now.Sub(lastActive) > h.timeout {
			timeoutCount++
			h.logger.Debug("Connection heartbeat timeout",
				"conn_id", conn.ID(),
				"user_id", conn.UserID(),
				"last_active", lastActive)

			conn.Close()
			h.manager.Remove(conn.ID())
			continue
		}
		if err := conn.Ping(); err != nil {
			h.logger.Debug("Failed to ping connection", "conn_id", conn.ID(), "error", err)
		}
	}

	if timeoutCount > 0 {
		h.logger.Info("Heartbeat check completed",
			"total", len(conns),
			"timeout", timeoutCount)
	}
	return timeoutCount
}
