package signal

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, reason string) {
	ctl.sendJSON(conn, struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{
		Type:  "error",
		Error: reason,
	})
}
