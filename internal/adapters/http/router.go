package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/adapters/ws"
	"github.com/mgrn/tamari/internal/config"
)

const ctxClientToken = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a stable token to each browser. It keys the
// per-session coordinator, so presence survives page reloads as the same
// logical client.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set(ctxClientToken, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *Controller, events *ws.EventsController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TamariSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")
	api.POST("/auth/guest", ctl.GuestLogin)
	api.GET("/rooms/:id", ctl.RoomInfo)
	api.GET("/rooms/:id/members", ctl.Members)
	api.GET("/rooms/:id/events", func(c *gin.Context) {
		events.Handle(ctx, c)
	})

	authed := api.Group("", ctl.AuthRequired())
	authed.POST("/rooms/:id/join", ctl.Join)
	authed.POST("/rooms/:id/leave", ctl.Leave)

	return r
}
