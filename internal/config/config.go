package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 引擎服务配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Engine   EngineConfig   `mapstructure:"engine"`
	AI       AIConfig       `mapstructure:"ai"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	NodeID   string `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
	Mode     string `mapstructure:"mode"` // gin 模式: debug / release / test
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	HealthAddr        string        `mapstructure:"health_addr"`
	MaxConnections    int           `mapstructure:"max_connections"`
	WriteBuffer       int           `mapstructure:"write_buffer"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	MessageBurst      int           `mapstructure:"message_burst"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"` // 控制面按 IP 限流
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	WorkerCount   int           `mapstructure:"worker_count"`
	BufferSize    int           `mapstructure:"buffer_size"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BatchSize       int           `mapstructure:"batch_size"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
}

// DSN PostgreSQL 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr Redis 地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
	// 为 true 时允许通过 userId 查询参数匿名接入，仅用于本地调试
	AllowAnonymous bool `mapstructure:"allow_anonymous"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// EngineConfig 房间与回合计时
type EngineConfig struct {
	Tick          time.Duration `mapstructure:"tick"`
	Workers       int           `mapstructure:"workers"`
	SpeechTimeout time.Duration `mapstructure:"speech_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	VoteTimeout   time.Duration `mapstructure:"vote_timeout"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	RecentLog     int           `mapstructure:"recent_log"`
	MaxRooms      int           `mapstructure:"max_rooms"`
	Retention     time.Duration `mapstructure:"retention"`
	LobbyIdle     time.Duration `mapstructure:"lobby_idle"`
	EvictInterval time.Duration `mapstructure:"evict_interval"`
}

// AIConfig AI 代理配置，APIKey 为空时使用本地随机代理
type AIConfig struct {
	Provider      string        `mapstructure:"provider"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	MaxWords      int           `mapstructure:"max_words"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	SpeechTimeout time.Duration `mapstructure:"speech_timeout"`
	ChunkTimeout  time.Duration `mapstructure:"chunk_timeout"`
	ChunkDelay    time.Duration `mapstructure:"chunk_delay"`
}

// 计时取值范围
const (
	MinSpeechTimeout = 30 * time.Second
	MaxSpeechTimeout = 300 * time.Second
	MinTurnTimeout   = 5 * time.Second
	MaxTurnTimeout   = 10 * time.Minute
	MinGracePeriod   = 10 * time.Second
	MaxGracePeriod   = 30 * time.Minute
)

// Validate 把计时参数收敛到允许范围
func (c *EngineConfig) Validate() {
	c.SpeechTimeout = clamp(c.SpeechTimeout, MinSpeechTimeout, MaxSpeechTimeout)
	c.ActionTimeout = clamp(c.ActionTimeout, MinTurnTimeout, MaxTurnTimeout)
	c.VoteTimeout = clamp(c.VoteTimeout, MinTurnTimeout, MaxTurnTimeout)
	c.GracePeriod = clamp(c.GracePeriod, MinGracePeriod, MaxGracePeriod)
	if c.Tick <= 0 || c.Tick > time.Second {
		c.Tick = time.Second
	}
	if c.RecentLog <= 0 {
		c.RecentLog = 50
	}
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "werewolf-engine")
	v.SetDefault("app.node_id", "engine-1")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.mode", "release")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.health_addr", ":8081")
	v.SetDefault("server.max_connections", 10000)
	v.SetDefault("server.write_buffer", 256)
	v.SetDefault("server.heartbeat_timeout", 90*time.Second)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.messages_per_second", 10)
	v.SetDefault("server.message_burst", 20)
	v.SetDefault("server.requests_per_minute", 600)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.worker_count", 32)
	v.SetDefault("nats.buffer_size", 4096)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "werewolf")
	v.SetDefault("database.user", "werewolf")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.batch_size", 100)
	v.SetDefault("database.flush_interval", 200*time.Millisecond)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.issuer", "im-web")
	v.SetDefault("auth.allow_anonymous", false)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})

	v.SetDefault("engine.tick", time.Second)
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.speech_timeout", 90*time.Second)
	v.SetDefault("engine.action_timeout", 30*time.Second)
	v.SetDefault("engine.vote_timeout", 30*time.Second)
	v.SetDefault("engine.grace_period", 5*time.Minute)
	v.SetDefault("engine.recent_log", 50)
	v.SetDefault("engine.retention", 10*time.Minute)
	v.SetDefault("engine.lobby_idle", 30*time.Minute)
	v.SetDefault("engine.evict_interval", 10*time.Second)

	v.SetDefault("ai.provider", "random")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.max_words", 80)
	v.SetDefault("ai.action_timeout", 10*time.Second)
	v.SetDefault("ai.speech_timeout", 60*time.Second)
	v.SetDefault("ai.chunk_timeout", 10*time.Second)
	v.SetDefault("ai.chunk_delay", 150*time.Millisecond)
}

// Load 加载配置文件，WEREWOLF_ 前缀的环境变量覆盖文件中的值
// 例如 WEREWOLF_AI_API_KEY 覆盖 ai.api_key；只有设置过默认值的键才会读取环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEREWOLF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Engine.Validate()

	return &cfg, nil
}
