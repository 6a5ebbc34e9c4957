package http

import (
	"context"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/adapters/render"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/orch"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, sink *render.StatsSink) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("KinSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	ctrl := NewController(o, sink)

	api := r.Group("/api")
	session := api.Group("/session")
	session.POST("/start", ctrl.handleStart)
	session.POST("/stop", ctrl.handleStop)
	session.POST("/prewarm", ctrl.handlePrewarm)
	session.GET("", ctrl.handleStatus)
	session.GET("/media", ctrl.handleMediaStats)
	commands := session.Group("")
	commands.Use(NewCommandRateLimiter(20, 10*time.Second).Middleware())
	commands.POST("/speak", ctrl.handleSpeak)
	commands.POST("/interrupt", ctrl.handleInterrupt)
	commands.POST("/gesture", ctrl.handleGesture)
	commands.POST("/emotion", ctrl.handleEmotion)
	commands.POST("/listening", ctrl.handleListening)

	api.GET("/debug/events", ctrl.handleDebugSnapshot)
	api.GET("/ws/events", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws events endpoint hit")
		ctrl.HandleEventsWS(ctx, c)
	})

	return r
}
