package core

// Frame is a raw encoded payload (one JSON document).
type Frame []byte

// ConnID identifies one live transport session.
type ConnID string

// SignalConnection is one live duplex connection to a client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	// TrySend must not block.
	TrySend(Frame) error
	Close()
}
