package orch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/ChatCall/internal/app"
	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/dkeye/ChatCall/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	defaultQueueSize     = 256
	defaultICEWarnWindow = 10 * time.Second
	sendTimeout          = 15 * time.Second
)

// MessageSender stores a message before it is relayed.
type MessageSender interface {
	Send(ctx context.Context, sender, receiver domain.UserID, d domain.MessageDraft) (*domain.Message, error)
}

type Options struct {
	Policy        app.Policy
	Messages      MessageSender
	Presence      core.PresenceSink
	InviteLimiter *app.InviteRateLimiter
	ICEWarnWindow time.Duration
	// RingTimeout ends unanswered calls server-side. Zero leaves it to clients.
	RingTimeout time.Duration
	QueueSize   int
}

// Coordinator owns the registry and the call tracker. Every mutation runs on
// the goroutine inside Run; the exported methods only enqueue events.
type Coordinator struct {
	Registry    *app.Registry
	Calls       *app.CallTracker
	Policy      app.Policy
	Messages    MessageSender
	Presence    core.PresenceSink
	Invites     *app.InviteRateLimiter
	RingTimeout time.Duration

	iceWarn   *app.WarnThrottle
	observers map[core.ConnID]core.SignalConnection
	handlers  map[string]signalHandler
	events    chan event
	done      chan struct{}
	runCtx    context.Context
	afterFunc func(time.Duration, func())
}

type signalHandler func(c *Coordinator, from domain.UserID, conn core.SignalConnection, data []byte)

// publicEvents may be sent by connections without an identity.
var publicEvents = map[string]bool{
	EvGetOnlineUsers: true,
}

func New(opts Options) *Coordinator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	if opts.ICEWarnWindow <= 0 {
		opts.ICEWarnWindow = defaultICEWarnWindow
	}
	c := &Coordinator{
		Registry:    app.NewRegistry(),
		Calls:       app.NewCallTracker(),
		Policy:      opts.Policy,
		Messages:    opts.Messages,
		Presence:    opts.Presence,
		Invites:     opts.InviteLimiter,
		RingTimeout: opts.RingTimeout,
		iceWarn:     app.NewWarnThrottle(opts.ICEWarnWindow),
		observers:   make(map[core.ConnID]core.SignalConnection),
		events:      make(chan event, opts.QueueSize),
		done:        make(chan struct{}),
		runCtx:      context.Background(),
		afterFunc:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	c.handlers = map[string]signalHandler{
		EvGetOnlineUsers: (*Coordinator).handleGetOnlineUsers,
		EvCallUser:       (*Coordinator).routeCallInvite,
		EvAnswerCall:     (*Coordinator).routeAnswer,
		EvIceCandidate:   (*Coordinator).routeIceCandidate,
		EvRejectCall:     (*Coordinator).routeReject,
		EvEndCall:        (*Coordinator).routeEnd,
		EvCallTimeout:    (*Coordinator).routeTimeout,
		EvSendMessage:    (*Coordinator).handleSendMessage,
	}
	return c
}

type event interface{}

type attachEvent struct {
	id   domain.UserID
	conn core.SignalConnection
}

type detachEvent struct {
	id   domain.UserID
	conn core.SignalConnection
}

type signalEvent struct {
	id   domain.UserID
	conn core.SignalConnection
	kind string
	data []byte
}

type deliverEvent struct {
	msg      *domain.Message
	clientID string
}

type messageFailedEvent struct {
	id       domain.UserID
	conn     core.SignalConnection
	clientID string
	err      error
}

type ringExpiredEvent struct {
	session app.CallSession
}

type onlineQuery struct {
	reply chan []domain.UserID
}

// Run processes events until ctx is cancelled, then closes every handle.
func (c *Coordinator) Run(ctx context.Context) {
	c.runCtx = ctx
	log.Info().Str("module", "orch").Msg("coordinator started")
	defer func() {
		close(c.done)
		c.teardown()
		log.Info().Str("module", "orch").Msg("coordinator stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Attach binds conn to id. An empty id attaches an anonymous observer.
func (c *Coordinator) Attach(id domain.UserID, conn core.SignalConnection) {
	c.post(attachEvent{id: id, conn: conn})
}

// Detach releases conn. It is a no-op when id is bound to another handle.
func (c *Coordinator) Detach(id domain.UserID, conn core.SignalConnection) {
	c.post(detachEvent{id: id, conn: conn})
}

// Submit hands one inbound signaling event to the loop.
func (c *Coordinator) Submit(id domain.UserID, conn core.SignalConnection, kind string, data []byte) {
	c.post(signalEvent{id: id, conn: conn, kind: kind, data: data})
}

// DeliverMessage relays an already stored message to the receiver and
// acknowledges the sender.
func (c *Coordinator) DeliverMessage(msg *domain.Message, clientID string) {
	c.post(deliverEvent{msg: msg, clientID: clientID})
}

// Online returns the current presence snapshot.
func (c *Coordinator) Online(ctx context.Context) ([]domain.UserID, error) {
	q := onlineQuery{reply: make(chan []domain.UserID, 1)}
	if !c.postCtx(ctx, q) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}
	select {
	case users := <-q.reply:
		return users, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, context.Canceled
	}
}

func (c *Coordinator) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) postCtx(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *Coordinator) handle(ev event) {
	switch e := ev.(type) {
	case attachEvent:
		c.onAttach(e.id, e.conn)
	case detachEvent:
		c.onDetach(e.id, e.conn)
	case signalEvent:
		c.onSignal(e)
	case deliverEvent:
		c.relay(e.msg, e.clientID)
	case messageFailedEvent:
		c.onMessageFailed(e)
	case ringExpiredEvent:
		c.onRingExpired(e.session)
	case onlineQuery:
		e.reply <- c.Registry.Snapshot()
	default:
		log.Error().Str("module", "orch").Msgf("unexpected event %T", ev)
	}
	metrics.ActiveCalls.Set(float64(c.Calls.Active()))
}

func (c *Coordinator) onSignal(e signalEvent) {
	h, ok := c.handlers[e.kind]
	if !ok {
		metrics.SignalEvents.WithLabelValues("unknown").Inc()
		log.Warn().Str("module", "orch").Str("user", string(e.id)).Str("type", e.kind).Msg("unknown event")
		c.send(e.id, e.conn, errorMsg{Type: EvError, Error: ReasonUnknownEvent})
		return
	}
	metrics.SignalEvents.WithLabelValues(e.kind).Inc()

	if e.id == "" {
		if !publicEvents[e.kind] {
			c.send("", e.conn, errorMsg{Type: EvError, Error: ReasonUnauthenticated})
			return
		}
	} else if cur, bound := c.Registry.Resolve(e.id); !bound || cur.ID() != e.conn.ID() {
		log.Debug().Str("module", "orch").Str("user", string(e.id)).Str("type", e.kind).Msg("event from superseded connection dropped")
		return
	}
	h(c, e.id, e.conn, e.data)
}

func (c *Coordinator) onAttach(id domain.UserID, conn core.SignalConnection) {
	if conn == nil {
		return
	}
	if id == "" || !c.Registry.Bind(id, conn) {
		c.observers[conn.ID()] = conn
		log.Info().Str("module", "orch").Str("conn", string(conn.ID())).Msg("observer attached")
		c.send("", conn, onlineUsersMsg{Type: EvGetOnlineUsers, Users: c.Registry.Snapshot()})
		return
	}
	c.broadcastPresence()
}

func (c *Coordinator) onDetach(id domain.UserID, conn core.SignalConnection) {
	if _, ok := c.observers[conn.ID()]; ok {
		delete(c.observers, conn.ID())
		log.Info().Str("module", "orch").Str("conn", string(conn.ID())).Msg("observer detached")
		return
	}
	if !c.Registry.Unbind(id, conn) {
		return
	}
	if peer, ok := c.Calls.OnDisconnect(id); ok {
		metrics.CallOutcomes.WithLabelValues("disconnected").Inc()
		c.sendTo(peer, peerMsg{Type: EvCallEnded, From: id})
	}
	c.Invites.Forget(id)
	c.broadcastPresence()
}

// send encodes v and queues it on conn. A full queue is handed to the policy.
func (c *Coordinator) send(id domain.UserID, conn core.SignalConnection, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msgf("encode %T", v)
		return false
	}
	if err := conn.TrySend(b); err != nil {
		action := c.Policy.OnBackPressure(id, conn)
		switch action {
		case app.CloseConnection:
			metrics.DroppedFrames.WithLabelValues("close").Inc()
			log.Warn().Err(err).Str("module", "orch").Str("user", string(id)).Str("conn", string(conn.ID())).Msg("slow connection closed")
			conn.Close()
		case app.DropFrame, app.NoAction:
			metrics.DroppedFrames.WithLabelValues("drop").Inc()
			log.Warn().Err(err).Str("module", "orch").Str("user", string(id)).Str("conn", string(conn.ID())).Msg("frame dropped")
		}
		return false
	}
	return true
}

func (c *Coordinator) sendTo(id domain.UserID, v any) bool {
	conn, ok := c.Registry.Resolve(id)
	if !ok {
		return false
	}
	return c.send(id, conn, v)
}

func (c *Coordinator) teardown() {
	for id, conn := range c.observers {
		conn.Close()
		delete(c.observers, id)
	}
	c.Registry.Reset()
	metrics.OnlineUsers.Set(0)
	metrics.ActiveCalls.Set(0)
}
