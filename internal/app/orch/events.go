package orch

import (
	"encoding/json"

	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Inbound event names.
const (
	EvGetOnlineUsers = "getOnlineUsers"
	EvCallUser       = "call-user"
	EvAnswerCall     = "answer-call"
	EvIceCandidate   = "ice-candidate"
	EvRejectCall     = "reject-call"
	EvEndCall        = "end-call"
	EvCallTimeout    = "call-timeout"
	EvSendMessage    = "sendMessage"
)

// Outbound-only event names.
const (
	EvIncomingCall     = "incoming-call"
	EvCallSent         = "call-sent"
	EvCallFailed       = "call-failed"
	EvBusy             = "busy"
	EvCallRejected     = "call-rejected"
	EvCallEnded        = "call-ended"
	EvNewMessage       = "newMessage"
	EvMessageDelivered = "messageDelivered"
	EvMessageFailed    = "messageFailed"
	EvError            = "error"
)

// Failure reasons carried by call-failed, messageFailed and error.
const (
	ReasonOffline         = "offline"
	ReasonRateLimited     = "rate_limited"
	ReasonInvalidPayload  = "invalid_payload"
	ReasonInvalidTarget   = "invalid_target"
	ReasonUnauthenticated = "unauthenticated"
	ReasonUnknownEvent    = "unknown_event"
	ReasonUpstream        = "upstream_failure"
	ReasonEmptyMessage    = "empty_message"
	ReasonInvalidMedia    = "invalid_media"
	ReasonUnavailable     = "unavailable"
)

const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusOffline   = "offline"
)

type callUserPayload struct {
	To       string          `json:"to"`
	Offer    json.RawMessage `json:"offer"`
	CallType string          `json:"callType"`
}

type answerPayload struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
}

type candidatePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

type peerPayload struct {
	To string `json:"to"`
}

type sendMessagePayload struct {
	domain.MessageDraft
	ReceiverID string `json:"receiverId"`
	To         string `json:"to"`
	ClientID   string `json:"clientId"`
}

type onlineUsersMsg struct {
	Type  string          `json:"type"`
	Users []domain.UserID `json:"users"`
}

type incomingCallMsg struct {
	Type     string                    `json:"type"`
	From     domain.UserID             `json:"from"`
	Offer    webrtc.SessionDescription `json:"offer"`
	CallType domain.CallType           `json:"callType"`
}

type answerMsg struct {
	Type   string                    `json:"type"`
	From   domain.UserID             `json:"from"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type candidateMsg struct {
	Type      string                  `json:"type"`
	From      domain.UserID           `json:"from"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type callSentMsg struct {
	Type   string        `json:"type"`
	To     domain.UserID `json:"to"`
	Status string        `json:"status"`
}

type callFailedMsg struct {
	Type   string        `json:"type"`
	To     domain.UserID `json:"to,omitempty"`
	Reason string        `json:"reason"`
}

type busyMsg struct {
	Type string        `json:"type"`
	To   domain.UserID `json:"to"`
}

// peerMsg carries call-rejected, call-ended and call-timeout.
type peerMsg struct {
	Type string        `json:"type"`
	From domain.UserID `json:"from"`
}

type newMessageMsg struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

type deliveredMsg struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId"`
	Status    string          `json:"status"`
	ClientID  string          `json:"clientId,omitempty"`
	Message   *domain.Message `json:"message"`
}

type messageFailedMsg struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	Error    string `json:"error"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
