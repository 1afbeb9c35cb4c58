package orch

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/ChatCall/internal/adapters/rtc"
	"github.com/dkeye/ChatCall/internal/app"
	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/dkeye/ChatCall/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (c *Coordinator) callFailed(from domain.UserID, conn core.SignalConnection, to domain.UserID, reason string) {
	metrics.CallOutcomes.WithLabelValues(reason).Inc()
	c.send(from, conn, callFailedMsg{Type: EvCallFailed, To: to, Reason: reason})
}

// target decodes v and validates the "to" identity it carries.
func (c *Coordinator) target(from domain.UserID, conn core.SignalConnection, data []byte, v any, to *string) (domain.UserID, bool) {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("user", string(from)).Msg("bad payload")
		c.callFailed(from, conn, "", ReasonInvalidPayload)
		return "", false
	}
	id, err := domain.ParseUserID(*to)
	if err != nil {
		c.callFailed(from, conn, "", ReasonInvalidTarget)
		return "", false
	}
	return id, true
}

func (c *Coordinator) routeCallInvite(from domain.UserID, conn core.SignalConnection, data []byte) {
	var p callUserPayload
	to, ok := c.target(from, conn, data, &p, &p.To)
	if !ok {
		return
	}
	ct, ok := domain.ParseCallType(p.CallType)
	if !ok {
		c.callFailed(from, conn, to, ReasonInvalidPayload)
		return
	}
	offer, err := rtc.ParseDescription(p.Offer, webrtc.SDPTypeOffer)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("user", string(from)).Msg("offer rejected")
		c.callFailed(from, conn, to, ReasonInvalidPayload)
		return
	}
	if !c.Invites.Allow(from) {
		metrics.RateLimitHits.WithLabelValues("invite").Inc()
		c.callFailed(from, conn, to, ReasonRateLimited)
		return
	}

	sess, displaced, err := c.Calls.TryStartCall(from, to, ct)
	switch {
	case errors.Is(err, app.ErrBusy):
		metrics.CallOutcomes.WithLabelValues("busy").Inc()
		c.send(from, conn, busyMsg{Type: EvBusy, To: to})
		return
	case errors.Is(err, app.ErrSelfCall):
		c.callFailed(from, conn, to, ReasonInvalidTarget)
		return
	case err != nil:
		log.Error().Err(err).Str("module", "orch").Msg("start call")
		return
	}
	if displaced != "" {
		c.sendTo(displaced, peerMsg{Type: EvCallEnded, From: from})
	}

	callee, online := c.Registry.Resolve(to)
	if !online || !c.send(to, callee, incomingCallMsg{Type: EvIncomingCall, From: from, Offer: offer, CallType: ct}) {
		c.Calls.EndCall(from, to)
		c.callFailed(from, conn, to, ReasonOffline)
		return
	}
	metrics.CallOutcomes.WithLabelValues("sent").Inc()
	c.send(from, conn, callSentMsg{Type: EvCallSent, To: to, Status: StatusSent})
	c.armRingTimer(sess)
}

func (c *Coordinator) routeAnswer(from domain.UserID, conn core.SignalConnection, data []byte) {
	var p answerPayload
	to, ok := c.target(from, conn, data, &p, &p.To)
	if !ok {
		return
	}
	answer, err := rtc.ParseDescription(p.Answer, webrtc.SDPTypeAnswer)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("user", string(from)).Msg("answer rejected")
		c.callFailed(from, conn, to, ReasonInvalidPayload)
		return
	}

	changed, err := c.Calls.MarkAnswered(to, from)
	if err != nil {
		log.Debug().Str("module", "orch").Str("callee", string(from)).Str("caller", string(to)).Msg("answer without ringing session dropped")
		return
	}
	if !changed {
		log.Debug().Str("module", "orch").Str("callee", string(from)).Str("caller", string(to)).Msg("duplicate answer dropped")
		return
	}
	metrics.CallOutcomes.WithLabelValues("answered").Inc()
	c.sendTo(to, answerMsg{Type: EvAnswerCall, From: from, Answer: answer})
}

func (c *Coordinator) routeIceCandidate(from domain.UserID, conn core.SignalConnection, data []byte) {
	var p candidatePayload
	to, ok := c.target(from, conn, data, &p, &p.To)
	if !ok {
		return
	}
	cand, err := rtc.ParseCandidate(p.Candidate)
	if err != nil {
		c.callFailed(from, conn, to, ReasonInvalidPayload)
		return
	}

	dst, online := c.Registry.Resolve(to)
	if !online {
		if c.iceWarn.Allow(to) {
			log.Warn().Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Msg("ice candidate for offline user")
		}
		c.send(from, conn, callFailedMsg{Type: EvCallFailed, To: to, Reason: ReasonOffline})
		return
	}
	c.send(to, dst, candidateMsg{Type: EvIceCandidate, From: from, Candidate: cand})
}

func (c *Coordinator) routeReject(from domain.UserID, conn core.SignalConnection, data []byte) {
	c.closeCall(from, conn, data, EvCallRejected, "rejected")
}

func (c *Coordinator) routeEnd(from domain.UserID, conn core.SignalConnection, data []byte) {
	c.closeCall(from, conn, data, EvCallEnded, "ended")
}

// closeCall releases the sender's session and notifies the peer. A peer
// engaged with someone else is neither reset nor told.
func (c *Coordinator) closeCall(from domain.UserID, conn core.SignalConnection, data []byte, kind, outcome string) {
	var p peerPayload
	to, ok := c.target(from, conn, data, &p, &p.To)
	if !ok {
		return
	}
	others := c.Calls.EndCall(from, to)
	c.notifyEnded(others, from, to)
	if c.Calls.State(to) != domain.CallIdle {
		log.Debug().Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Str("event", kind).Msg("peer engaged elsewhere, not notified")
		return
	}
	metrics.CallOutcomes.WithLabelValues(outcome).Inc()
	c.sendTo(to, peerMsg{Type: kind, From: from})
}

func (c *Coordinator) routeTimeout(from domain.UserID, conn core.SignalConnection, data []byte) {
	var p peerPayload
	to, ok := c.target(from, conn, data, &p, &p.To)
	if !ok {
		return
	}
	if _, ok := c.Calls.CancelRinging(from, to); !ok {
		log.Debug().Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Msg("timeout for non-ringing pair ignored")
		return
	}
	metrics.CallOutcomes.WithLabelValues("timeout").Inc()
	c.sendTo(to, peerMsg{Type: EvCallTimeout, From: from})
}

func (c *Coordinator) armRingTimer(s app.CallSession) {
	if c.RingTimeout <= 0 {
		return
	}
	c.afterFunc(c.RingTimeout, func() { c.post(ringExpiredEvent{session: s}) })
}

func (c *Coordinator) onRingExpired(s app.CallSession) {
	if _, ok := c.Calls.Expire(s.ID, s.Caller, s.Callee); !ok {
		return
	}
	log.Info().Str("module", "orch").Str("caller", string(s.Caller)).Str("callee", string(s.Callee)).Msg("ring timeout")
	metrics.CallOutcomes.WithLabelValues("timeout").Inc()
	c.sendTo(s.Caller, peerMsg{Type: EvCallTimeout, From: s.Callee})
	c.sendTo(s.Callee, peerMsg{Type: EvCallTimeout, From: s.Caller})
}

// notifyEnded tells third parties whose session was torn down as a side effect.
func (c *Coordinator) notifyEnded(sessions []app.CallSession, a, b domain.UserID) {
	for _, s := range sessions {
		for _, party := range []domain.UserID{s.Caller, s.Callee} {
			if party == a || party == b {
				continue
			}
			c.sendTo(party, peerMsg{Type: EvCallEnded, From: s.Peer(party)})
		}
	}
}
