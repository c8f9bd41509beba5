package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway accepts inbound upgrade requests and hands the resulting duplex
// connection to the matching relay instance. Identity is resolved here,
// before a session exists; the relays never see a credential.
type Gateway struct {
	Supervisor *app.Supervisor
	Resolver   *auth.Resolver
	Cfg        *config.Config
}

func NewGateway(sup *app.Supervisor, resolver *auth.Resolver, cfg *config.Config) *Gateway {
	return &Gateway{Supervisor: sup, Resolver: resolver, Cfg: cfg}
}

// identify rejects the request before the upgrade when the caller supplies
// no userId, or a bearer token that is invalid, expired, or claims a
// different identity. An absent token trusts userId: the upstream gateway
// is expected to have authenticated the caller already.
func (g *Gateway) identify(c *gin.Context) (domain.ParticipantID, bool) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return "", false
	}
	if token := c.Query("token"); token != "" && g.Resolver != nil {
		pid, err := g.Resolver.Resolve(token)
		if err != nil {
			log.Warn().Err(err).Str("module", "ws.gateway").Msg("token rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return "", false
		}
		if string(pid) != userID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token identity mismatch"})
			return "", false
		}
	}
	return domain.ParticipantID(userID), true
}

// HandleRoom serves GET /ws/room/{roomId}?userId=.
func (g *Gateway) HandleRoom(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	pid, ok := g.identify(c)
	if !ok {
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws.gateway").Msg("ws upgrade")
		return
	}
	conn := newWSConn(sock, g.Cfg.SendBuffer)

	room, sess := g.Supervisor.JoinRoom(roomID, pid, conn)
	log.Info().Str("module", "ws.gateway").Str("room", string(roomID)).Str("user", string(pid)).Msg("room connection")

	ctx, cancel := context.WithCancel(ctx)
	go g.writePump(ctx, conn)
	go func() {
		defer func() {
			cancel()
			g.Supervisor.LeaveRoom(room, sess)
			conn.Close()
		}()
		g.readLoop(conn, func(data []byte) {
			room.HandleInbound(sess, data)
		})
	}()
}

// HandleCall serves GET /ws/call/{callId}?userId=.
func (g *Gateway) HandleCall(ctx context.Context, c *gin.Context) {
	callID := domain.CallID(c.Param("callId"))
	pid, ok := g.identify(c)
	if !ok {
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws.gateway").Msg("ws upgrade")
		return
	}
	conn := newWSConn(sock, g.Cfg.SendBuffer)

	call := g.Supervisor.JoinCall(callID, pid, conn)
	log.Info().Str("module", "ws.gateway").Str("call", string(callID)).Str("user", string(pid)).Msg("call connection")

	ctx, cancel := context.WithCancel(ctx)
	go g.writePump(ctx, conn)
	go func() {
		defer func() {
			cancel()
			g.Supervisor.LeaveCall(call, pid, conn)
			conn.Close()
		}()
		g.readLoop(conn, func(data []byte) {
			call.Route(pid, data)
		})
	}()
}
