package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/adapters/ws"
	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every caller of the admin surface with a
// stable cookie token, so admin reads can be correlated in the logs.
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

func SetupRouter(ctx context.Context, cfg *config.Config, sup *app.Supervisor, gw *ws.Gateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/ws/room/:roomId", func(c *gin.Context) {
		gw.HandleRoom(ctx, c)
	})
	r.GET("/ws/call/:callId", func(c *gin.Context) {
		gw.HandleCall(ctx, c)
	})

	r.GET("/users", func(c *gin.Context) {
		roomID := c.Query("roomId")
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing roomId"})
			return
		}
		room, ok := sup.Room(domain.RoomID(roomID))
		if !ok {
			c.JSON(http.StatusOK, []domain.Participant{})
			return
		}
		c.JSON(http.StatusOK, room.Participants())
	})

	r.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, sup.Rooms())
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
