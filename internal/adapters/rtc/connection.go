// Package rtc backs mesh peer links with pion WebRTC peer connections.
package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/dkeye/Huddle/internal/publish"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errForeignSender = errors.New("sender does not belong to this connection")

// Factory builds peer connections sharing one media engine and interceptor set.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func Configuration(servers []config.ICEServer) webrtc.Configuration {
	out := webrtc.Configuration{}
	for _, s := range servers {
		out.ICEServers = append(out.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

func NewFactory(servers []config.ICEServer) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("pli interceptor: %w", err)
	}
	registry.Add(pli)

	s := webrtc.SettingEngine{LoggerFactory: LoggerFactory{}}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(s),
	)
	return &Factory{api: api, cfg: Configuration(servers)}, nil
}

// New satisfies mesh.Factory.
func (f *Factory) New(remote domain.ConnID) (mesh.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, remote: remote}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	return c, nil
}

// Connection adapts *webrtc.PeerConnection to mesh.PeerConnection.
type Connection struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnID
}

func (c *Connection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

// Rollback discards the pending local offer. pion parses the SDP of every
// local description, rollbacks included, so the pending one is passed back.
func (c *Connection) Rollback() error {
	pending := c.pc.PendingLocalDescription()
	if pending == nil {
		return nil
	}
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP})
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) AddTrack(kind media.Kind, track webrtc.TrackLocal) (publish.Sender, error) {
	s, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	// RTCP must be read for interceptors like NACK to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := s.Read(buf); err != nil {
				return
			}
		}
	}()
	return &Sender{rtp: s, kind: kind, remote: c.remote}, nil
}

func (c *Connection) RemoveTrack(s publish.Sender) error {
	sender, ok := s.(*Sender)
	if !ok {
		return errForeignSender
	}
	return c.pc.RemoveTrack(sender.rtp)
}

func (c *Connection) SignalingState() webrtc.SignalingState { return c.pc.SignalingState() }

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (c *Connection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.pc.OnICEConnectionStateChange(fn)
}

func (c *Connection) OnTrack(fn func(mesh.RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		fn(track)
	})
}

func (c *Connection) Close() error {
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	}
	return err
}

// Sender wraps an RTP sender. pion exposes no encoding-parameter setter, so
// limits are handed to the track when it paces itself (media.Limiter);
// otherwise the track's producer is responsible for staying under them.
type Sender struct {
	rtp    *webrtc.RTPSender
	kind   media.Kind
	remote domain.ConnID

	mu     sync.Mutex
	limits media.EncodingLimits
}

func (s *Sender) ReplaceTrack(track webrtc.TrackLocal) error {
	return s.rtp.ReplaceTrack(track)
}

func (s *Sender) ApplyLimits(l media.EncodingLimits) error {
	s.mu.Lock()
	s.limits = l
	s.mu.Unlock()
	if lim, ok := s.rtp.Track().(media.Limiter); ok {
		lim.SetLimits(l)
	}
	log.Debug().Str("module", "webrtc").Str("remote", string(s.remote)).Str("kind", string(s.kind)).
		Uint64("max_bitrate", l.MaxBitrate).Float64("max_framerate", l.MaxFramerate).Msg("encoding limits")
	return nil
}

func (s *Sender) Limits() media.EncodingLimits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

func (s *Sender) Kind() media.Kind { return s.kind }
