package app

import "errors"

var (
	// ErrBusy means the callee is already ringing or in a call.
	ErrBusy = errors.New("callee busy")

	// ErrSelfCall is returned when caller and callee are the same identity.
	ErrSelfCall = errors.New("cannot call yourself")

	// ErrNoSession marks a late or duplicate signal for a pair with no matching call.
	ErrNoSession = errors.New("no call session")

	// ErrUpstream wraps persistence and blob storage failures.
	ErrUpstream = errors.New("upstream failure")
)
