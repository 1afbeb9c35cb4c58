package app

import (
	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	CloseConnection
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(id domain.UserID, conn core.SignalConnection) BackpressureAction
}

// SimplePolicy closes slow connections; the client is expected to reconnect.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return CloseConnection
}

// LenientPolicy drops the frame and keeps the connection.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return DropFrame
}
