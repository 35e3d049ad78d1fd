package mesh

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// descriptionPayload travels opaque through the relay. Streams maps the
// sender's stream IDs to the media purpose they carry.
type descriptionPayload struct {
	Type    string                           `json:"type"`
	SDP     string                           `json:"sdp"`
	Streams map[string]protocol.MediaContext `json:"streams,omitempty"`
}

func encodeDescription(desc webrtc.SessionDescription, streams map[string]protocol.MediaContext) (json.RawMessage, error) {
	return json.Marshal(descriptionPayload{Type: desc.Type.String(), SDP: desc.SDP, Streams: streams})
}

func decodeDescription(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, map[string]protocol.MediaContext, error) {
	var p descriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return webrtc.SessionDescription{}, nil, fmt.Errorf("decode description: %w", err)
	}
	if got := webrtc.NewSDPType(p.Type); got != want {
		return webrtc.SessionDescription{}, nil, fmt.Errorf("description type %q, want %s", p.Type, want)
	}
	return webrtc.SessionDescription{Type: want, SDP: p.SDP}, p.Streams, nil
}

func decodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("decode candidate: %w", err)
	}
	if c.Candidate == "" {
		return c, fmt.Errorf("empty candidate")
	}
	return c, nil
}

func encodeCandidate(c webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(c)
}
