package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/adapters/signal"
	"github.com/hoangvu12/kaguya-socket/internal/app"
	"github.com/hoangvu12/kaguya-socket/internal/config"
)

// ClientTokenMiddleware hands every browser a stable token, used as the
// guest identity when a join carries no user id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("ct").(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set("ct", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, rooms *app.RoomManager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("KaguyaSession", store))
	r.Use(ClientTokenMiddleware())

	base := r.Group("/" + cfg.BaseRoute)

	base.GET("/socket", func(c *gin.Context) {
		ctl.HandleSocket(ctx, c)
	})

	base.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.Rooms())
	})

	base.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("base_route", cfg.BaseRoute).Msg("router setup")
	return r
}
