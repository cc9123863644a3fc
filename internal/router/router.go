package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sudooom.im.werewolf/internal/auth"
	"sudooom.im.werewolf/internal/config"
	"sudooom.im.werewolf/internal/handler"
	"sudooom.im.werewolf/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	verifier *auth.Verifier,
	roomHandler *handler.RoomHandler,
	wsHandler *handler.WSHandler,
) *gin.Engine {
	if cfg.App.Mode != "" {
		gin.SetMode(cfg.App.Mode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORS)))

	authenticated := middleware.TokenAuth(verifier, cfg.Auth.AllowAnonymous)

	// 实时通道
	r.GET("/ws", authenticated, wsHandler.Serve)

	// 控制面
	limiter := middleware.NewRateLimiter(cfg.Server.RequestsPerMinute, 0)
	v1 := r.Group("/api/v1")
	v1.Use(limiter.Handler(), authenticated)
	{
		v1.POST("/rooms", roomHandler.Create)

		room := v1.Group("/rooms/:code")
		{
			room.POST("/start", roomHandler.Start)
			room.POST("/pause", roomHandler.Pause)
			room.POST("/resume", roomHandler.Resume)
			room.POST("/speech", roomHandler.Speech)
			room.POST("/actions", roomHandler.Action)
			room.POST("/stop", roomHandler.Stop)
			room.GET("/log", roomHandler.Log)
			room.GET("/snapshot", roomHandler.Snapshot)
		}
	}

	return r
}

func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:     c.AllowedMethods,
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: c.AllowCredentials,
		MaxAge:           24 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 || (len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowedOrigins
	}
	if len(cc.AllowMethods) == 0 {
		cc.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	return cc
}
