package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func TestCheckWithoutDependencies(t *testing.T) {
	h := NewChecker(nil, nil, nil, fixedCount(3), fixedCount(7))

	status := h.Check(context.Background())
	assert.Equal(t, StateNotConfigured, status.NATS)
	assert.Equal(t, StateNotConfigured, status.Database)
	assert.Equal(t, 3, status.Rooms)
	assert.Equal(t, 7, status.Connections)
	assert.True(t, h.IsHealthy(context.Background()), "未配置的依赖不影响健康")

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "werewolf-engine", body.Service)
}

func TestCheckUnreachableRedis(t *testing.T) {
	// 保留端口，连接必然失败
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	h := NewChecker(nil, client, nil, nil, nil)
	assert.Equal(t, StateDisconnected, h.Check(context.Background()).Redis)

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Not Ready", rec.Body.String())
}
