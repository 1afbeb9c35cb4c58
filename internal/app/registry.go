package app

import (
	"slices"

	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps an identity to its single live connection.
// Not safe for concurrent use: it is owned by the coordinator loop.
type Registry struct {
	conns map[domain.UserID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.SignalConnection)}
}

// Bind installs conn for id. A different connection already bound to id is
// closed first. Invalid identities are never registered.
func (r *Registry) Bind(id domain.UserID, conn core.SignalConnection) bool {
	if !id.Valid() || conn == nil {
		return false
	}
	if old, ok := r.conns[id]; ok && old.ID() != conn.ID() {
		log.Info().Str("module", "app.registry").Str("user", string(id)).
			Str("old_conn", string(old.ID())).Str("conn", string(conn.ID())).Msg("superseding connection")
		old.Close()
	}
	r.conns[id] = conn
	log.Info().Str("module", "app.registry").Str("user", string(id)).Str("conn", string(conn.ID())).Msg("bound")
	return true
}

// Unbind removes id only while conn is still the bound connection.
func (r *Registry) Unbind(id domain.UserID, conn core.SignalConnection) bool {
	cur, ok := r.conns[id]
	if !ok || conn == nil || cur.ID() != conn.ID() {
		return false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("user", string(id)).Str("conn", string(conn.ID())).Msg("unbound")
	return true
}

func (r *Registry) Resolve(id domain.UserID) (core.SignalConnection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Snapshot returns the bound identities in sorted order.
func (r *Registry) Snapshot() []domain.UserID {
	out := make([]domain.UserID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Len() int { return len(r.conns) }

// Connections returns every bound connection.
func (r *Registry) Connections() []core.SignalConnection {
	out := make([]core.SignalConnection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Reset closes every bound connection and empties the registry.
func (r *Registry) Reset() {
	for id, c := range r.conns {
		c.Close()
		delete(r.conns, id)
	}
}
