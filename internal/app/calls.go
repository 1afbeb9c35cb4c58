package app

import (
	"time"

	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// CallSession is one call between two identities. Both parties share the
// same session, so their states cannot diverge.
type CallSession struct {
	ID         uint64
	Caller     domain.UserID
	Callee     domain.UserID
	Type       domain.CallType
	State      domain.CallState
	StartedAt  time.Time
	AnsweredAt time.Time
}

// Peer returns the other party of the session.
func (s CallSession) Peer(id domain.UserID) domain.UserID {
	if id == s.Caller {
		return s.Callee
	}
	return s.Caller
}

type pairKey struct{ a, b domain.UserID }

func keyOf(x, y domain.UserID) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// CallTracker guards call admission with an idle/ringing/in-call state per user.
// Not safe for concurrent use: it is owned by the coordinator loop.
type CallTracker struct {
	sessions map[pairKey]*CallSession
	byUser   map[domain.UserID]*CallSession
	seq      uint64
	now      func() time.Time
}

func NewCallTracker() *CallTracker {
	return &CallTracker{
		sessions: make(map[pairKey]*CallSession),
		byUser:   make(map[domain.UserID]*CallSession),
		now:      time.Now,
	}
}

func (t *CallTracker) State(id domain.UserID) domain.CallState {
	if s, ok := t.byUser[id]; ok {
		return s.State
	}
	return domain.CallIdle
}

// Session returns a copy of the session id takes part in.
func (t *CallTracker) Session(id domain.UserID) (CallSession, bool) {
	s, ok := t.byUser[id]
	if !ok {
		return CallSession{}, false
	}
	return *s, true
}

// Active returns the number of live sessions.
func (t *CallTracker) Active() int { return len(t.sessions) }

// TryStartCall moves caller and callee to ringing. It fails with ErrBusy,
// leaving all state untouched, when the callee is engaged. A caller still
// engaged with someone else has that session ended first; the displaced
// party is returned so it can be told.
func (t *CallTracker) TryStartCall(caller, callee domain.UserID, ct domain.CallType) (CallSession, domain.UserID, error) {
	if caller == callee {
		return CallSession{}, "", ErrSelfCall
	}
	if t.State(callee).Engaged() {
		log.Debug().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Msg("callee busy")
		return CallSession{}, "", ErrBusy
	}
	var displaced domain.UserID
	if prev, ok := t.byUser[caller]; ok {
		displaced = prev.Peer(caller)
		t.remove(prev)
	}
	t.seq++
	s := &CallSession{
		ID:        t.seq,
		Caller:    caller,
		Callee:    callee,
		Type:      ct,
		State:     domain.CallRinging,
		StartedAt: t.now(),
	}
	t.sessions[keyOf(caller, callee)] = s
	t.byUser[caller] = s
	t.byUser[callee] = s
	log.Info().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Uint64("session", s.ID).Msg("ringing")
	return *s, displaced, nil
}

// MarkAnswered moves a ringing pair to in-call. It reports whether the state
// changed; an already answered pair is left alone. ErrNoSession is returned
// when no session exists where callee was rung by caller.
func (t *CallTracker) MarkAnswered(caller, callee domain.UserID) (bool, error) {
	s, ok := t.sessions[keyOf(caller, callee)]
	if !ok || s.Caller != caller || s.Callee != callee {
		return false, ErrNoSession
	}
	if s.State == domain.CallInCall {
		return false, nil
	}
	s.State = domain.CallInCall
	s.AnsweredAt = t.now()
	log.Info().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Uint64("session", s.ID).Msg("in call")
	return true, nil
}

// EndCall releases a's session whatever its state. A session with b resets
// both to idle. A session a had with someone else is ended too and returned
// so that party can be told. A session b holds with a third party is left
// untouched.
func (t *CallTracker) EndCall(a, b domain.UserID) []CallSession {
	s, ok := t.byUser[a]
	if !ok {
		return nil
	}
	t.remove(s)
	if s.Peer(a) != b {
		return []CallSession{*s}
	}
	return nil
}

// CancelRinging ends the pair's session only while it is still ringing.
func (t *CallTracker) CancelRinging(a, b domain.UserID) (CallSession, bool) {
	s, ok := t.sessions[keyOf(a, b)]
	if !ok || s.State != domain.CallRinging {
		return CallSession{}, false
	}
	t.remove(s)
	return *s, true
}

// Expire ends session id if it still exists and is ringing.
func (t *CallTracker) Expire(id uint64, a, b domain.UserID) (CallSession, bool) {
	s, ok := t.sessions[keyOf(a, b)]
	if !ok || s.ID != id {
		return CallSession{}, false
	}
	return t.CancelRinging(a, b)
}

// OnDisconnect clears id's state and returns the counterpart, if any, that
// was forced back to idle.
func (t *CallTracker) OnDisconnect(id domain.UserID) (domain.UserID, bool) {
	s, ok := t.byUser[id]
	if !ok {
		return "", false
	}
	peer := s.Peer(id)
	t.remove(s)
	return peer, true
}

func (t *CallTracker) remove(s *CallSession) {
	delete(t.sessions, keyOf(s.Caller, s.Callee))
	if t.byUser[s.Caller] == s {
		delete(t.byUser, s.Caller)
	}
	if t.byUser[s.Callee] == s {
		delete(t.byUser, s.Callee)
	}
	log.Debug().Str("module", "app.calls").Str("caller", string(s.Caller)).Str("callee", string(s.Callee)).
		Str("state", s.State.String()).Uint64("session", s.ID).Msg("session removed")
}
