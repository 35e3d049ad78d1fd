package mesh

import (
	"maps"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/dkeye/Huddle/internal/publish"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PeerLink is the local side of the media connection to one remote
// participant. All of its state sits behind its own mutex; links never
// wait on each other.
type PeerLink struct {
	remote  domain.ConnID
	pc      PeerConnection
	sig     Signaler
	hooks   Hooks
	opts    Options
	offerer bool // senior side: sends the first offer and ICE restarts
	logger  zerolog.Logger

	onClosed func(*PeerLink, CloseReason)

	mu            sync.Mutex
	state         State
	role          Role
	started       bool
	established   bool
	awaiting      bool
	lastCtx       protocol.MediaContext
	dirty         bool
	dirtyScreen   bool
	remoteDescSet bool
	pending       []webrtc.ICECandidateInit
	iceConnected  bool
	restarts      int
	timer         Timer
	senders       map[media.Kind]publish.Sender
	streamOf      map[media.Kind]string
	remoteStreams map[string]protocol.MediaContext
	notes         []State
}

func newPeerLink(remote domain.ConnID, pc PeerConnection, sig Signaler, hooks Hooks, opts Options, offerer bool) *PeerLink {
	l := &PeerLink{
		remote:        remote,
		pc:            pc,
		sig:           sig,
		hooks:         hooks,
		opts:          opts,
		offerer:       offerer,
		logger:        log.With().Str("module", "mesh").Str("remote", string(remote)).Logger(),
		lastCtx:       protocol.CameraStream,
		senders:       make(map[media.Kind]publish.Sender),
		streamOf:      make(map[media.Kind]string),
		remoteStreams: make(map[string]protocol.MediaContext),
	}
	pc.OnICECandidate(l.onLocalCandidate)
	pc.OnICEConnectionStateChange(l.onICEState)
	pc.OnTrack(l.onRemoteTrack)
	return l
}

func (l *PeerLink) RemoteID() domain.ConnID { return l.remote }

// Polite links yield on offer collisions. The newcomer side is polite.
func (l *PeerLink) Polite() bool { return !l.offerer }

func (l *PeerLink) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Role is the role this link played in its most recent negotiation.
func (l *PeerLink) Role() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.role
}

// PublishedKinds lists the local media kinds currently sent on this link.
func (l *PeerLink) PublishedKinds() []media.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]media.Kind, 0, len(l.senders))
	for _, k := range media.Kinds {
		if _, ok := l.senders[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (l *PeerLink) setState(s State) {
	if l.state == s {
		return
	}
	l.logger.Debug().Str("from", l.state.String()).Str("to", s.String()).Msg("state")
	l.state = s
	l.notes = append(l.notes, s)
}

// unlock releases the link and reports state changes made while locked.
func (l *PeerLink) unlock() {
	notes := l.notes
	l.notes = nil
	l.mu.Unlock()
	if l.hooks.OnStateChange == nil {
		return
	}
	for _, s := range notes {
		l.hooks.OnStateChange(l.remote, s)
	}
}

func (l *PeerLink) streams() map[string]protocol.MediaContext {
	out := make(map[string]protocol.MediaContext, len(l.streamOf))
	for kind, id := range l.streamOf {
		out[id] = kind.Context()
	}
	return out
}

func (l *PeerLink) canOffer() bool {
	if l.awaiting || l.state == StateClosed || l.state == StateRecovering {
		return false
	}
	if l.offerer {
		return l.started
	}
	return l.established
}

func (l *PeerLink) dirtyContext() protocol.MediaContext {
	if l.dirtyScreen {
		return protocol.ScreenStream
	}
	return protocol.CameraStream
}

func (l *PeerLink) send(msg protocol.Message) {
	if err := l.sig.Send(msg); err != nil {
		l.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("signal send")
	}
}

// start sends the initial offer from the senior side.
func (l *PeerLink) start() {
	l.mu.Lock()
	l.started = true
	ctx := l.dirtyContext()
	l.unlock()
	l.negotiate(ctx, false)
}

// MarkDirty requests renegotiation. Requests made while an offer is
// outstanding fold into one follow-up offer.
func (l *PeerLink) MarkDirty(ctx protocol.MediaContext) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.unlock()
		return
	}
	l.dirty = true
	if ctx == protocol.ScreenStream {
		l.dirtyScreen = true
	}
	ready := l.canOffer()
	next := l.dirtyContext()
	l.unlock()
	if ready {
		l.negotiate(next, false)
	}
}

func (l *PeerLink) negotiate(ctx protocol.MediaContext, restart bool) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.unlock()
		return
	}
	if l.awaiting && !restart {
		l.dirty = true
		l.unlock()
		return
	}
	prev := l.state
	recovering := prev == StateRecovering
	if !recovering {
		l.setState(StateOffering)
	}
	offer, err := l.pc.CreateOffer(restart)
	if err != nil {
		l.logger.Error().Err(err).Bool("ice_restart", restart).Msg("create offer")
		if !recovering {
			l.setState(prev)
		}
		l.unlock()
		return
	}
	payload, err := encodeDescription(offer, l.streams())
	if err != nil {
		l.logger.Error().Err(err).Msg("encode offer")
		l.unlock()
		return
	}
	l.dirty, l.dirtyScreen = false, false
	l.awaiting = true
	l.role = RoleOfferer
	l.lastCtx = ctx
	if !recovering {
		l.setState(StateOffered)
	}
	l.unlock()

	l.logger.Debug().Str("ctx", string(ctx)).Bool("ice_restart", restart).Msg("offer sent")
	l.send(protocol.Message{Type: protocol.TypeOffer, Target: l.remote, MediaContext: ctx, Payload: payload})
}

func (l *PeerLink) handleOffer(msg protocol.Message) {
	desc, streams, err := decodeDescription(msg.Payload, webrtc.SDPTypeOffer)
	if err != nil {
		l.logger.Warn().Err(err).Msg("bad offer")
		return
	}
	ctx := msg.MediaContext
	if !ctx.Valid() {
		ctx = protocol.CameraStream
	}

	l.mu.Lock()
	if l.state == StateClosed {
		l.unlock()
		return
	}
	collision := l.awaiting || l.pc.SignalingState() != webrtc.SignalingStateStable
	if collision {
		if l.offerer {
			l.logger.Debug().Msg("ignoring colliding offer")
			l.unlock()
			return
		}
		if err := l.pc.Rollback(); err != nil {
			l.logger.Warn().Err(err).Msg("rollback")
		}
		// Our withdrawn offer is re-sent after this exchange.
		l.awaiting = false
		l.dirty = true
		if l.lastCtx == protocol.ScreenStream {
			l.dirtyScreen = true
		}
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		l.logger.Error().Err(err).Msg("apply offer")
		l.unlock()
		return
	}
	l.afterRemoteDescription(streams)
	answer, err := l.pc.CreateAnswer()
	if err != nil {
		l.logger.Error().Err(err).Msg("create answer")
		l.unlock()
		return
	}
	payload, err := encodeDescription(answer, l.streams())
	if err != nil {
		l.logger.Error().Err(err).Msg("encode answer")
		l.unlock()
		return
	}
	l.role = RoleAnswerer
	l.established = true
	l.lastCtx = ctx
	if l.state == StateIdle || l.state == StateOffering {
		l.setState(StateOffered)
	}
	if l.iceConnected && l.state != StateRecovering {
		l.setState(StateConnected)
	}
	follow := l.dirty && l.canOffer()
	next := l.dirtyContext()
	l.unlock()

	l.send(protocol.Message{Type: protocol.TypeAnswer, Target: l.remote, MediaContext: ctx, Payload: payload})
	if follow {
		l.negotiate(next, false)
	}
}

func (l *PeerLink) handleAnswer(msg protocol.Message) {
	desc, streams, err := decodeDescription(msg.Payload, webrtc.SDPTypeAnswer)
	if err != nil {
		l.logger.Warn().Err(err).Msg("bad answer")
		return
	}
	l.mu.Lock()
	if l.state == StateClosed || !l.awaiting {
		l.logger.Debug().Msg("unexpected answer dropped")
		l.unlock()
		return
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		l.logger.Error().Err(err).Msg("apply answer")
		l.unlock()
		return
	}
	l.awaiting = false
	l.established = true
	l.afterRemoteDescription(streams)
	ctx := msg.MediaContext
	if !ctx.Valid() {
		ctx = l.lastCtx
	}
	if l.iceConnected && l.state != StateRecovering {
		l.setState(StateConnected)
	}
	follow := l.dirty && l.canOffer()
	next := l.dirtyContext()
	l.unlock()

	if l.hooks.OnNegotiated != nil {
		l.hooks.OnNegotiated(l.remote, ctx)
	}
	if follow {
		l.negotiate(next, false)
	}
}

// afterRemoteDescription records the peer's stream map and flushes
// candidates that arrived early. Called with the lock held.
func (l *PeerLink) afterRemoteDescription(streams map[string]protocol.MediaContext) {
	l.remoteDescSet = true
	maps.Copy(l.remoteStreams, streams)
	for _, c := range l.pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.logger.Warn().Err(err).Msg("buffered candidate")
		}
	}
	l.pending = nil
}

func (l *PeerLink) handleCandidate(msg protocol.Message) {
	c, err := decodeCandidate(msg.Payload)
	if err != nil {
		l.logger.Debug().Err(err).Msg("candidate ignored")
		return
	}
	l.mu.Lock()
	defer l.unlock()
	if l.state == StateClosed {
		return
	}
	if !l.remoteDescSet {
		l.pending = append(l.pending, c)
		return
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		l.logger.Warn().Err(err).Msg("add candidate")
	}
}

func (l *PeerLink) onLocalCandidate(c webrtc.ICECandidateInit) {
	payload, err := encodeCandidate(c)
	if err != nil {
		return
	}
	l.mu.Lock()
	closed := l.state == StateClosed
	ctx := l.lastCtx
	l.unlock()
	if closed {
		return
	}
	l.send(protocol.Message{Type: protocol.TypeICECandidate, Target: l.remote, MediaContext: ctx, Payload: payload})
}

func (l *PeerLink) onRemoteTrack(track RemoteTrack) {
	l.mu.Lock()
	ctx, ok := l.remoteStreams[track.StreamID()]
	closed := l.state == StateClosed
	l.unlock()
	if closed {
		return
	}
	if !ok {
		ctx = protocol.CameraStream
	}
	l.logger.Info().Str("track", track.ID()).Str("stream", track.StreamID()).Str("ctx", string(ctx)).Msg("remote track")
	if l.hooks.OnRemoteTrack != nil {
		l.hooks.OnRemoteTrack(l.remote, ctx, track)
	}
}

func (l *PeerLink) onICEState(s webrtc.ICEConnectionState) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.unlock()
		return
	}
	l.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		l.iceConnected = true
		l.restarts = 0
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
		if l.state != StateOffering {
			l.setState(StateConnected)
		}
		follow := l.dirty && l.canOffer()
		next := l.dirtyContext()
		l.unlock()
		if follow {
			l.negotiate(next, false)
		}
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected:
		l.iceConnected = false
		if l.state == StateRecovering {
			l.unlock()
			return
		}
		l.setState(StateRecovering)
		l.restarts = 0
		l.unlock()
		l.attemptRecovery()
	default:
		l.unlock()
	}
}

// attemptRecovery runs one step of the restart budget. The senior side
// sends an ICE-restart offer each step; the polite side only waits.
func (l *PeerLink) attemptRecovery() {
	l.mu.Lock()
	if l.state != StateRecovering {
		l.unlock()
		return
	}
	if l.restarts >= l.opts.RestartAttempts {
		l.unlock()
		l.logger.Warn().Int("attempts", l.opts.RestartAttempts).Msg("recovery exhausted")
		l.close(CloseRecoveryFailed)
		return
	}
	l.restarts++
	attempt := l.restarts
	l.timer = l.opts.AfterFunc(l.opts.RestartInterval, l.attemptRecovery)
	ctx := l.lastCtx
	l.unlock()

	if l.offerer {
		l.logger.Info().Int("attempt", attempt).Msg("ICE restart")
		l.negotiate(ctx, true)
	}
}

// Close tears the link down. Closing twice is a no-op.
func (l *PeerLink) Close(reason CloseReason) {
	l.close(reason)
}

func (l *PeerLink) close(reason CloseReason) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.unlock()
		return
	}
	l.setState(StateClosed)
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.pending = nil
	l.awaiting = false
	l.dirty = false
	clear(l.senders)
	clear(l.streamOf)
	l.unlock()

	if err := l.pc.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("close peer connection")
	}
	l.logger.Info().Str("reason", string(reason)).Msg("link closed")
	if l.onClosed != nil {
		l.onClosed(l, reason)
	}
	if l.hooks.OnPeerClosed != nil {
		l.hooks.OnPeerClosed(l.remote, reason)
	}
}

// publish.Target

func (l *PeerLink) Sender(kind media.Kind) (publish.Sender, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.senders[kind]
	return s, ok
}

func (l *PeerLink) AddSender(kind media.Kind, track webrtc.TrackLocal) (publish.Sender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return nil, ErrLinkClosed
	}
	s, err := l.pc.AddTrack(kind, track)
	if err != nil {
		return nil, err
	}
	l.senders[kind] = s
	l.streamOf[kind] = track.StreamID()
	return s, nil
}

func (l *PeerLink) RemoveSender(kind media.Kind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.senders[kind]
	if !ok {
		return nil
	}
	delete(l.senders, kind)
	delete(l.streamOf, kind)
	if l.state == StateClosed {
		return nil
	}
	return l.pc.RemoveTrack(s)
}
