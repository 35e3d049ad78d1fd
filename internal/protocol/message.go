// Package protocol defines the JSON signaling vocabulary shared by server and client.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrInvalidPayload = errors.New("payload is not valid JSON")

type Type string

// client -> server
const (
	TypeCreateRoom Type = "create-room"
	TypeJoinRoom   Type = "join-room"
	TypeLeaveRoom  Type = "leave-room"
	TypeKick       Type = "kick"
	TypeRoomExists Type = "room-exists"
	TypeWhoAmI     Type = "whoami"
	TypePing       Type = "ping"
)

// negotiation, both directions
const (
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
)

// server -> client
const (
	TypeRoomCreated         Type = "room-created"
	TypeJoinAccepted        Type = "join-accepted"
	TypeJoinRejected        Type = "join-rejected"
	TypeParticipantsUpdated Type = "participants-updated"
	TypeParticipantJoined   Type = "participant-joined"
	TypeParticipantLeft     Type = "participant-left"
	TypeHostChanged         Type = "host-changed"
	TypeParticipantKicked   Type = "participant-kicked"
	TypeIdentityRebound     Type = "identity-rebound"
	TypeLeft                Type = "left"
	TypePong                Type = "pong"
	TypeError               Type = "error"
)

// IsNegotiation reports whether t is relayed between peers untouched.
func (t Type) IsNegotiation() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// MediaContext tags which media purpose a negotiation concerns.
type MediaContext string

const (
	CameraStream MediaContext = "camera-stream"
	ScreenStream MediaContext = "screen-stream"
)

func (c MediaContext) Valid() bool { return c == CameraStream || c == ScreenStream }

// Message is the single envelope for every frame on the signaling socket.
// Only the fields relevant to Type are populated.
type Message struct {
	Type Type `json:"type"`

	RoomID   domain.RoomID `json:"roomId,omitempty"`
	Identity string        `json:"identity,omitempty"`

	Target       domain.ConnID   `json:"target,omitempty"`
	Sender       domain.ConnID   `json:"sender,omitempty"`
	MediaContext MediaContext    `json:"mediaContext,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`

	SelfID          domain.ConnID            `json:"selfId,omitempty"`
	Host            domain.ConnID            `json:"host,omitempty"`
	Rebound         bool                     `json:"rebound,omitempty"`
	Participants    []domain.ParticipantView `json:"participants,omitempty"`
	ConnectionID    domain.ConnID            `json:"connectionId,omitempty"`
	OldConnectionID domain.ConnID            `json:"oldConnectionId,omitempty"`
	Reason          string                   `json:"reason,omitempty"`

	Exists *bool `json:"exists,omitempty"`
	Full   *bool `json:"full,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Encode serializes m without HTML escaping. The payload is spliced in as
// the last field exactly as received; encoding/json would compact it.
func Encode(m Message) ([]byte, error) {
	payload := m.Payload
	m.Payload = nil
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if len(payload) == 0 {
		return out, nil
	}
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}
	out = append(out[:len(out)-1], `,"payload":`...)
	out = append(out, payload...)
	return append(out, '}'), nil
}

// Parse decodes a server frame on the client side. Unknown fields are tolerated.
func Parse(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

func Bool(v bool) *bool { return &v }

func ErrorMessage(code, text string) Message {
	return Message{Type: TypeError, Code: code, Error: text}
}
