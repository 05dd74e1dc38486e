package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/adapters/signal"
	"github.com/dkeye/calla/internal/app/orch"
	"github.com/dkeye/calla/internal/config"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
)

const clientTokenCookie = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token; it becomes the session ID.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg config.ServerConfig, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallaSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	if cfg.MetricsPath != "" && o.Metrics != nil {
		r.GET(cfg.MetricsPath, gin.WrapH(metrics.Handler(o.Metrics.Registry())))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("metrics", cfg.MetricsPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, cfg)
	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})
	api.DELETE("/rooms/:name", func(c *gin.Context) {
		name := domain.RoomName(c.Param("name"))
		if _, ok := o.Rooms.Get(name); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such room"})
			return
		}
		n := o.EvictRoom(name)
		log.Info().Str("module", "adapters.http").Str("room", string(name)).Int("evicted", n).Msg("room evicted")
		c.JSON(http.StatusOK, gin.H{"room": name, "evicted": n})
	})

	return r
}
