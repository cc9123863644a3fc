package main

import (
	"context"
	"errors"
	"flag"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sudooom.im.werewolf/internal/auth"
	"sudooom.im.werewolf/internal/config"
	"sudooom.im.werewolf/internal/connection"
	"sudooom.im.werewolf/internal/game"
	"sudooom.im.werewolf/internal/game/ai"
	"sudooom.im.werewolf/internal/handler"
	"sudooom.im.werewolf/internal/health"
	imNats "sudooom.im.werewolf/internal/nats"
	"sudooom.im.werewolf/internal/router"
	"sudooom.im.werewolf/internal/store"
	"sudooom.im.werewolf/internal/store/migrations"
	"sudooom.im.werewolf/internal/task"
	"sudooom.im.werewolf/pkg/snowflake"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("nodeId", cfg.App.NodeID)
	slog.SetDefault(logger)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 数据库迁移
	if err := migrations.Migrate(cfg.Database.DSN()); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	logStore := store.NewPostgresLog(db, store.BatcherConfig{
		BatchSize:     cfg.Database.BatchSize,
		FlushInterval: cfg.Database.FlushInterval,
	})
	logStore.Start(ctx)

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr())

	// 连接 NATS
	natsClient, err := imNats.NewClient(cfg.NATS, cfg.App.Name+"/"+cfg.App.NodeID)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 计时调度器
	scheduler := task.NewScheduler(cfg.Engine.Workers, cfg.Engine.Tick)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// AI 代理
	agent, closeAgent := newAgent(ctx, cfg.AI, logger)
	defer closeAgent()
	orchestrator := ai.NewOrchestrator(agent, ai.Config{
		ActionTimeout: cfg.AI.ActionTimeout,
		SpeechTimeout: cfg.AI.SpeechTimeout,
		ChunkTimeout:  cfg.AI.ChunkTimeout,
	})

	// 房间管理
	ids := snowflake.NewNode(nodeNumber(cfg.App.NodeID))
	manager := game.NewGameManager(game.ManagerConfig{
		NodeID:        cfg.App.NodeID,
		MaxRooms:      cfg.Engine.MaxRooms,
		Retention:     cfg.Engine.Retention,
		LobbyIdle:     cfg.Engine.LobbyIdle,
		EvictInterval: cfg.Engine.EvictInterval,
		Room: game.RoomConfig{
			SpeechTimeout:    cfg.Engine.SpeechTimeout,
			ActionTimeout:    cfg.Engine.ActionTimeout,
			VoteTimeout:      cfg.Engine.VoteTimeout,
			GracePeriod:      cfg.Engine.GracePeriod,
			RecentLog:        cfg.Engine.RecentLog,
			SubscriberBuffer: cfg.Server.WriteBuffer,
		},
	}, game.Deps{
		Timers:       scheduler,
		Orchestrator: orchestrator,
		Store:        logStore,
		Cache:        store.NewRedisCache(redisClient),
		Sink:         imNats.NewEventPublisher(natsClient.Conn(), cfg.App.NodeID),
		IDs:          ids.Next,
	})
	gameService := game.NewGameService(manager, logStore)

	// 连接管理与心跳
	conns := connection.NewManager(cfg.Server.MaxConnections)
	heartbeat := connection.NewHeartbeatChecker(conns, cfg.Server.HeartbeatTimeout, cfg.Server.HeartbeatInterval)
	go heartbeat.Start(ctx)

	// 上行订阅
	subscriber := imNats.NewUpstreamSubscriber(natsClient.Conn(), handler.NewUpstreamHandler(gameService), imNats.SubscriberConfig{
		WorkerCount: cfg.NATS.WorkerCount,
		BufferSize:  cfg.NATS.BufferSize,
	})
	if err := subscriber.Start(ctx); err != nil {
		logger.Error("Failed to start subscriber", "error", err)
		os.Exit(1)
	}

	// HTTP 与 websocket
	verifier := auth.NewVerifier(cfg.Auth.SecretKey, cfg.Auth.Issuer)
	wsHandler := handler.NewWSHandler(gameService, conns, connection.Options{
		WriteBuffer:       cfg.Server.WriteBuffer,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		MessageBurst:      cfg.Server.MessageBurst,
	}, cfg.CORS.AllowedOrigins)
	engine := router.SetupRouter(cfg, verifier, handler.NewRoomHandler(gameService), wsHandler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// 启动健康检查 HTTP 服务
	healthChecker := health.NewChecker(natsClient.Conn(), redisClient, db, manager, conns)
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr,
		Handler:           healthChecker.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Health check server started", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed", "error", err)
		}
	}()

	logger.Info("Werewolf engine started", "name", cfg.App.Name)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	subscriber.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("GameManager shutdown", "error", err)
	}
	conns.CloseAll()
	scheduler.Stop()
	logStore.Stop()
	healthServer.Shutdown(shutdownCtx)
	cancel()

	logger.Info("Werewolf engine stopped")
}

// newAgent 配置了 Gemini API Key 时使用 Gemini，否则使用本地随机代理
func newAgent(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (ai.Agent, func()) {
	if cfg.Provider == "gemini" && cfg.APIKey != "" {
		agent, err := ai.NewGeminiAgent(ctx, cfg.APIKey, cfg.Model, cfg.MaxWords)
		if err == nil {
			logger.Info("Using Gemini agent", "model", cfg.Model)
			return agent, func() {
				if err := agent.Close(); err != nil {
					logger.Warn("Failed to close Gemini client", "error", err)
				}
			}
		}
		logger.Error("Failed to create Gemini agent, falling back to random agent", "error", err)
	}
	logger.Info("Using random agent")
	return ai.NewRandomAgent(uint64(time.Now().UnixNano()), cfg.ChunkDelay), func() {}
}

// nodeNumber 由节点名派生雪花节点号
func nodeNumber(nodeID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(nodeID))
	return int64(h.Sum32() % 1024)
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
