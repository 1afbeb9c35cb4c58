package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/ChatCall/internal/app"
	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/dkeye/ChatCall/internal/metrics"
	"github.com/rs/zerolog/log"
)

// handleSendMessage stores the message off the loop; the outcome comes back
// as a deliverEvent or messageFailedEvent.
func (c *Coordinator) handleSendMessage(from domain.UserID, conn core.SignalConnection, data []byte) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.send(from, conn, messageFailedMsg{Type: EvMessageFailed, Error: ReasonInvalidPayload})
		metrics.MessageFailures.Inc()
		return
	}
	if c.Messages == nil {
		c.send(from, conn, messageFailedMsg{Type: EvMessageFailed, ClientID: p.ClientID, Error: ReasonUnavailable})
		metrics.MessageFailures.Inc()
		return
	}
	receiver := p.ReceiverID
	if receiver == "" {
		receiver = p.To
	}

	ctx := c.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		msg, err := c.Messages.Send(ctx, from, domain.UserID(receiver), p.MessageDraft)
		if err != nil {
			c.post(messageFailedEvent{id: from, conn: conn, clientID: p.ClientID, err: err})
			return
		}
		c.post(deliverEvent{msg: msg, clientID: p.ClientID})
	}()
}

// relay pushes a stored message to the receiver, if online, and acknowledges
// the sender on its current handle.
func (c *Coordinator) relay(msg *domain.Message, clientID string) {
	status := StatusOffline
	if conn, ok := c.Registry.Resolve(msg.ReceiverID); ok {
		if c.send(msg.ReceiverID, conn, newMessageMsg{Type: EvNewMessage, Message: msg}) {
			status = StatusDelivered
		}
	}
	metrics.MessagesRelayed.WithLabelValues(status).Inc()
	log.Debug().Str("module", "orch").Str("id", msg.ID).Str("receiver", string(msg.ReceiverID)).Str("status", status).Msg("message relayed")
	c.sendTo(msg.SenderID, deliveredMsg{
		Type:      EvMessageDelivered,
		MessageID: msg.ID,
		Status:    status,
		ClientID:  clientID,
		Message:   msg,
	})
}

func (c *Coordinator) onMessageFailed(e messageFailedEvent) {
	metrics.MessageFailures.Inc()
	log.Warn().Err(e.err).Str("module", "orch").Str("user", string(e.id)).Msg("message not sent")
	c.send(e.id, e.conn, messageFailedMsg{Type: EvMessageFailed, ClientID: e.clientID, Error: failureReason(e.err)})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return ReasonEmptyMessage
	case errors.Is(err, domain.ErrInvalidMedia):
		return ReasonInvalidMedia
	case errors.Is(err, domain.ErrMissingReceiver), errors.Is(err, domain.ErrInvalidIdentity):
		return ReasonInvalidTarget
	case errors.Is(err, app.ErrUpstream):
		return ReasonUpstream
	default:
		return ReasonUnavailable
	}
}
