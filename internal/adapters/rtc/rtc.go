// Package rtc validates peer-to-peer negotiation payloads and builds the ICE
// configuration handed to clients. The server never terminates media itself.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

var (
	ErrEmptyPayload   = errors.New("empty negotiation payload")
	ErrWrongSDPType   = errors.New("unexpected sdp type")
	ErrMalformedSDP   = errors.New("malformed sdp")
	ErrBadCandidate   = errors.New("malformed ice candidate")
	ErrNoICEServerURL = errors.New("ice server without urls")
)

// ICEServer is the configuration form of a STUN/TURN server.
type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

func DefaultICEServers() []ICEServer {
	return []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// Configuration converts configured servers into the form browsers accept
// for RTCPeerConnection.
func Configuration(servers []ICEServer) (webrtc.Configuration, error) {
	if len(servers) == 0 {
		servers = DefaultICEServers()
	}
	out := webrtc.Configuration{ICEServers: make([]webrtc.ICEServer, 0, len(servers))}
	for _, s := range servers {
		if len(s.URLs) == 0 {
			return webrtc.Configuration{}, ErrNoICEServerURL
		}
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	return out, nil
}

// ParseDescription decodes an offer or answer and checks that its SDP parses.
func ParseDescription(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	if len(raw) == 0 || string(raw) == "null" {
		return sd, ErrEmptyPayload
	}
	if err := json.Unmarshal(raw, &sd); err != nil {
		return sd, fmt.Errorf("%w: %v", ErrMalformedSDP, err)
	}
	if sd.Type != want {
		return sd, fmt.Errorf("%w: got %s, want %s", ErrWrongSDPType, sd.Type, want)
	}
	if strings.TrimSpace(sd.SDP) == "" {
		return sd, ErrEmptyPayload
	}
	if _, err := sd.Unmarshal(); err != nil {
		return sd, fmt.Errorf("%w: %v", ErrMalformedSDP, err)
	}
	return sd, nil
}

// ParseCandidate decodes a trickled ICE candidate. An empty candidate string
// is the end-of-candidates marker and is accepted.
func ParseCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	if len(raw) == 0 || string(raw) == "null" {
		return ci, ErrEmptyPayload
	}
	if err := json.Unmarshal(raw, &ci); err != nil {
		return ci, fmt.Errorf("%w: %v", ErrBadCandidate, err)
	}
	if ci.Candidate != "" && !strings.HasPrefix(strings.TrimPrefix(ci.Candidate, "a="), "candidate:") {
		return ci, ErrBadCandidate
	}
	return ci, nil
}
