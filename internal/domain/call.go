package domain

import "strings"

type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallInCall
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallInCall:
		return "in-call"
	default:
		return "idle"
	}
}

// Engaged reports whether a user in this state cannot accept another call.
func (s CallState) Engaged() bool { return s == CallRinging || s == CallInCall }

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// ParseCallType defaults an empty value to video.
func ParseCallType(raw string) (CallType, bool) {
	switch CallType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CallVideo:
		return CallVideo, true
	case CallAudio:
		return CallAudio, true
	}
	return "", false
}
