// Package signal is the websocket event router: it translates inbound
// per-connection events into engine calls and fans results back out as
// reply-to-sender, room-broadcast-excluding-sender or room-wide sends.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/app"
	"github.com/hoangvu12/kaguya-socket/internal/config"
	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Rooms *app.RoomManager
	Clock *app.ClockSync

	echoMessages bool
	readLimit    int64
	pingPeriod   time.Duration
	upgrader     websocket.Upgrader

	mu    sync.RWMutex
	conns map[core.SessionID]core.SignalConnection
}

func NewController(rooms *app.RoomManager, clock *app.ClockSync, cfg *config.Config) *Controller {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Controller{
		Rooms:        rooms,
		Clock:        clock,
		echoMessages: cfg.EchoMessages,
		readLimit:    cfg.ReadLimit,
		pingPeriod:   cfg.PingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		conns: make(map[core.SessionID]core.SignalConnection),
	}
}

// wsConn wraps one websocket with a buffered outbound channel. TrySend
// never blocks; a full buffer drops the frame (backpressure).
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSocket upgrades the connection and starts the pumps. Each live
// connection gets a fresh session id.
func (ctl *Controller) HandleSocket(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	s := &session{
		sid:     sid,
		conn:    conn,
		guestID: domain.UserID(c.GetString("client_token")),
	}
	ctl.bind(sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
		// Unblocks a reader parked in ReadMessage.
		conn.Close()
	}()
	go func() {
		ctl.readPump(ctx, s, conn)
		cancel()
		ctl.dropSession(s)
	}()
}

func (ctl *Controller) bind(sid core.SessionID, conn core.SignalConnection) {
	ctl.mu.Lock()
	ctl.conns[sid] = conn
	ctl.mu.Unlock()
}

func (ctl *Controller) unbind(sid core.SessionID) {
	ctl.mu.Lock()
	delete(ctl.conns, sid)
	ctl.mu.Unlock()
}

func (ctl *Controller) connOf(sid core.SessionID) (core.SignalConnection, bool) {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	conn, ok := ctl.conns[sid]
	return conn, ok
}

func (ctl *Controller) sendJSON(conn core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("send dropped")
	}
}

// broadcast fans v out to every member of the room. except skips one
// session; pass "" to include everyone.
func (ctl *Controller) broadcast(roomID domain.RoomID, except core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.broadcastRaw(roomID, except, b)
}

func (ctl *Controller) broadcastRaw(roomID domain.RoomID, except core.SessionID, frame core.Frame) {
	for _, m := range ctl.Rooms.Members(roomID) {
		if m.SessionID == except {
			continue
		}
		conn, ok := ctl.connOf(m.SessionID)
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(m.SessionID)).Msg("broadcast dropped")
		}
	}
}
