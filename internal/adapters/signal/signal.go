package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Limits struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func LimitsFrom(cfg *config.Config) Limits {
	return Limits{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limits  Limits
	Limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, limits Limits, limiter *RoomRateLimiter) *SignalWSController {
	return &SignalWSController{Orch: o, Limits: limits, Limiter: limiter}
}

type WsSignalConn struct {
	id    domain.ConnID
	token string
	conn  *websocket.Conn
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool
}

// limitKey is the rate limiter key: the client token, so reconnecting does
// not reset the attempt history. Sockets without a token fall back to
// their own id.
func (c *WsSignalConn) limitKey() string {
	if c.token != "" {
		return c.token
	}
	return string(c.id)
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the pumps for one connection.
// Every socket gets a fresh ConnID; the client token ties sockets of one
// browser together for logging and rate limiting.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:    domain.ConnID(uuid.NewString()),
		token: token,
		conn:  ws,
		send:  make(chan core.Frame, ctl.Limits.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("client", token).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(conn.id, conn, cancel, token)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
