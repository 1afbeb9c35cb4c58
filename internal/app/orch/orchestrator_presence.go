package orch

import (
	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/dkeye/ChatCall/internal/metrics"
)

// broadcastPresence pushes the sorted online list to every bound handle and
// observer. It runs after each change to the registry.
func (c *Coordinator) broadcastPresence() {
	users := c.Registry.Snapshot()
	metrics.OnlineUsers.Set(float64(len(users)))
	msg := onlineUsersMsg{Type: EvGetOnlineUsers, Users: users}
	for _, id := range users {
		c.sendTo(id, msg)
	}
	for _, conn := range c.observers {
		c.send("", conn, msg)
	}
	if c.Presence != nil {
		c.Presence.Publish(users)
	}
}

func (c *Coordinator) handleGetOnlineUsers(from domain.UserID, conn core.SignalConnection, _ []byte) {
	c.send(from, conn, onlineUsersMsg{Type: EvGetOnlineUsers, Users: c.Registry.Snapshot()})
}
