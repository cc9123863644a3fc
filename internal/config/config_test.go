package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "werewolf-engine", cfg.App.Name)
	assert.Equal(t, 90*time.Second, cfg.Engine.SpeechTimeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.ActionTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Engine.GracePeriod)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "postgres://werewolf:@localhost:5432/werewolf?sslmode=disable", cfg.Database.DSN())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
app:
  name: test-engine
engine:
  speech_timeout: 45s
  vote_timeout: 1h
  grace_period: 1s
ai:
  model: gemini-pro
`)
	t.Setenv("WEREWOLF_AI_API_KEY", "secret")
	t.Setenv("WEREWOLF_ENGINE_ACTION_TIMEOUT", "20s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-engine", cfg.App.Name)
	assert.Equal(t, 45*time.Second, cfg.Engine.SpeechTimeout)
	assert.Equal(t, 20*time.Second, cfg.Engine.ActionTimeout, "环境变量覆盖默认值")
	assert.Equal(t, MaxTurnTimeout, cfg.Engine.VoteTimeout, "超出上限被截断")
	assert.Equal(t, MinGracePeriod, cfg.Engine.GracePeriod, "低于下限被抬高")
	assert.Equal(t, "gemini-pro", cfg.AI.Model)
	assert.Equal(t, "secret", cfg.AI.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEngineValidate(t *testing.T) {
	c := EngineConfig{SpeechTimeout: time.Second, Tick: time.Minute}
	c.Validate()
	assert.Equal(t, MinSpeechTimeout, c.SpeechTimeout)
	assert.Equal(t, MinTurnTimeout, c.ActionTimeout)
	assert.Equal(t, time.Second, c.Tick)
	assert.Equal(t, 50, c.RecentLog)
}
