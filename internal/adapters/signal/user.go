package signal

import (
	"github.com/dkeye/ChatCall/internal/domain"
)

// handleWhoAmI reports the identity the connection was authenticated as.
func (ctl *SignalWSController) handleWhoAmI(
	id domain.UserID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type      string        `json:"type"`
		UserID    domain.UserID `json:"userId,omitempty"`
		Anonymous bool          `json:"anonymous"`
	}{
		Type:      "whoami",
		UserID:    id,
		Anonymous: id == "",
	}
	ctl.sendJSON(conn, resp)
}
