// Package signal serves the relay websocket: one controller per server, one read and
// one write pump per connection.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/adapters/rtc"
	"github.com/dkeye/calla/internal/app/orch"
	"github.com/dkeye/calla/internal/config"
	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	sendQueue   = 64
	writeWait   = 5 * time.Second
	defaultPing = 54 * time.Second
)

type SignalWSController struct {
	Orch       *orch.Orchestrator
	Limiter    *RoomRateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
	RTC        webrtc.Configuration
}

func NewSignalWSController(o *orch.Orchestrator, cfg config.ServerConfig) *SignalWSController {
	ctl := &SignalWSController{
		Orch:       o,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		RTC:        rtc.Config(cfg.STUN),
	}
	if cfg.JoinLimit > 0 {
		ctl.Limiter = NewRoomRateLimiter(cfg.JoinLimit, cfg.JoinWindow)
	}
	if ctl.PingPeriod <= 0 {
		ctl.PingPeriod = defaultPing
	}
	return ctl
}

type WsSignalConn struct {
	ctx  context.Context
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	if sid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	ctx, cancel := context.WithCancel(ctx)
	conn := &WsSignalConn{
		ctx:  ctx,
		conn: ws,
		send: make(chan core.Frame, sendQueue),
	}

	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewMember(user)).UpdateSignal(conn)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, sess, conn)
}

// disconnect drops sid from the server unless a newer connection took the token over.
func (ctl *SignalWSController) disconnect(sid core.SessionID, sess core.MemberSession) {
	cur, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok || cur != sess {
		return
	}
	ctl.Orch.KickBySID(sid)
	ctl.Orch.Registry.Unbind(sid, sess)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("session unbound")
}
