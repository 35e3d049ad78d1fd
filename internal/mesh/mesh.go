// Package mesh owns one media connection per remote participant and drives
// each through its negotiation and recovery states independently.
package mesh

import (
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/dkeye/Huddle/internal/publish"
	"github.com/pion/webrtc/v4"
)

var ErrLinkClosed = errors.New("peer link closed")

type State int

const (
	StateIdle State = iota
	StateOffering
	StateOffered
	StateConnected
	StateRecovering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateOffered:
		return "offered"
	case StateConnected:
		return "connected"
	case StateRecovering:
		return "recovering"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Role int

const (
	RoleNone Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "none"
	}
}

type CloseReason string

const (
	ClosePeerLeft       CloseReason = "peer-left"
	ClosePeerKicked     CloseReason = "peer-kicked"
	ClosePeerGone       CloseReason = "peer-disconnected"
	ClosePeerRebound    CloseReason = "peer-rebound"
	CloseRecoveryFailed CloseReason = "recovery-failed"
	CloseLocalLeave     CloseReason = "local-leave"
)

// RemoteTrack is satisfied by *webrtc.TrackRemote.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// PeerConnection is the slice of a WebRTC peer connection the mesh drives.
// CreateOffer and CreateAnswer also install the result as local description.
type PeerConnection interface {
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	Rollback() error
	AddICECandidate(c webrtc.ICECandidateInit) error
	AddTrack(kind media.Kind, track webrtc.TrackLocal) (publish.Sender, error)
	RemoveTrack(sender publish.Sender) error
	SignalingState() webrtc.SignalingState

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))
	OnTrack(fn func(RemoteTrack))
	Close() error
}

// Factory builds a fresh PeerConnection for one remote participant.
type Factory func(remote domain.ConnID) (PeerConnection, error)

// Signaler carries negotiation messages to the relay.
type Signaler interface {
	Send(msg protocol.Message) error
}

// Hooks are optional; they are never called while a link lock is held.
type Hooks struct {
	OnRemoteTrack func(remote domain.ConnID, ctx protocol.MediaContext, track RemoteTrack)
	OnPeerClosed  func(remote domain.ConnID, reason CloseReason)
	OnNegotiated  func(remote domain.ConnID, ctx protocol.MediaContext)
	OnStateChange func(remote domain.ConnID, state State)
}

type Timer interface {
	Stop() bool
}

type Options struct {
	// RestartAttempts bounds ICE restarts before a link is given up.
	RestartAttempts int
	RestartInterval time.Duration
	AfterFunc       func(d time.Duration, f func()) Timer
}

const (
	DefaultRestartAttempts = 3
	DefaultRestartInterval = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.RestartAttempts <= 0 {
		o.RestartAttempts = DefaultRestartAttempts
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = DefaultRestartInterval
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return o
}
