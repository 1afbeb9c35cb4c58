package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/dkeye/ChatCall/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// IdentityKey is the gin context key holding the authenticated user id.
const IdentityKey = "user_id"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Hub receives connection lifecycle and inbound events.
type Hub interface {
	Attach(id domain.UserID, conn core.SignalConnection)
	Detach(id domain.UserID, conn core.SignalConnection)
	Submit(id domain.UserID, conn core.SignalConnection, kind string, data []byte)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Hub  Hub
	opts Options
}

func NewSignalWSController(hub Hub, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &SignalWSController{Hub: hub, opts: opts}
}

type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
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

// HandleSignal upgrades the request and runs the connection until either side
// closes it. ctx bounds the connection's lifetime, not the request's.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.UserID(c.GetString(IdentityKey))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("user", string(id)).Str("conn", string(conn.id)).Msg("new WS connection")
	metrics.OpenConnections.Inc()

	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Attach(id, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
