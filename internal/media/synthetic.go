package media

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// SyntheticTrack is a TrackLocalStaticRTP fed with generated packets.
// It stands in for real capture in the CLI client and in tests.
type SyntheticTrack struct {
	*webrtc.TrackLocalStaticRTP
	kind Kind

	mu     sync.Mutex
	hint   ContentHint
	limits EncodingLimits
}

func (t *SyntheticTrack) MediaKind() Kind { return t.kind }

func (t *SyntheticTrack) SetContentHint(h ContentHint) {
	t.mu.Lock()
	t.hint = h
	t.mu.Unlock()
}

func (t *SyntheticTrack) ContentHint() ContentHint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hint
}

// SetLimits changes the pacing of a running track.
func (t *SyntheticTrack) SetLimits(l EncodingLimits) {
	t.mu.Lock()
	t.limits = l
	t.mu.Unlock()
}

func (t *SyntheticTrack) Limits() EncodingLimits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// pace derives the tick interval, RTP timestamp step and payload size that
// keep the track inside l.
func pace(k Kind, l EncodingLimits) (interval time.Duration, step uint32, size int) {
	interval, step = 20*time.Millisecond, 960
	if k != Mic {
		fps := l.MaxFramerate
		if fps <= 0 {
			fps = 30
		}
		interval = time.Duration(float64(time.Second) / fps)
		step = uint32(90000 / fps)
	}
	size = maxPayload
	if l.MaxBitrate > 0 {
		perTick := int(float64(l.MaxBitrate) / 8 * interval.Seconds())
		size = max(1, min(size, perTick))
	}
	return interval, step, size
}

const maxPayload = 1200

func codecFor(k Kind) webrtc.RTPCodecCapability {
	if k == Mic {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// StreamID groups tracks the way a browser groups a MediaStream: mic and
// camera share one stream, screen share has its own.
func StreamID(owner string, k Kind) string {
	if k == Screen {
		return fmt.Sprintf("%s-screen", owner)
	}
	return fmt.Sprintf("%s-camera", owner)
}

func NewSyntheticTrack(owner string, k Kind) (*SyntheticTrack, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(codecFor(k), fmt.Sprintf("%s-%s", owner, k), StreamID(owner, k))
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", k, err)
	}
	return &SyntheticTrack{TrackLocalStaticRTP: track, kind: k, limits: LimitsFor(k)}, nil
}

// Run writes packets until ctx is canceled. Audio ticks every 20ms, video
// at the frame rate ceiling; payloads stay under the bitrate ceiling.
// Limits set while running take effect on the next tick.
func (t *SyntheticTrack) Run(ctx context.Context) {
	pt := uint8(111)
	if t.kind != Mic {
		pt = 96
	}
	cur := t.Limits()
	interval, step, size := pace(t.kind, cur)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: uint16(rand.UintN(1 << 16)),
			Timestamp:      rand.Uint32(),
		},
		Payload: make([]byte, size),
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l := t.Limits(); l != cur {
				cur = l
				interval, step, size = pace(t.kind, cur)
				ticker.Reset(interval)
				pkt.Payload = make([]byte, size)
			}
			pkt.SequenceNumber++
			pkt.Timestamp += step
			pkt.Marker = t.kind != Mic
			if err := t.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "media").Str("track", t.ID()).Msg("synthetic write")
				return
			}
		}
	}
}

// SyntheticSource serves generated tracks for the enabled kinds.
type SyntheticSource struct {
	mu     sync.Mutex
	tracks map[Kind]*SyntheticTrack
}

func NewSyntheticSource(owner string, kinds ...Kind) (*SyntheticSource, error) {
	s := &SyntheticSource{tracks: make(map[Kind]*SyntheticTrack)}
	for _, k := range kinds {
		t, err := NewSyntheticTrack(owner, k)
		if err != nil {
			return nil, err
		}
		s.tracks[k] = t
	}
	return s, nil
}

func (s *SyntheticSource) Track(kind Kind) (webrtc.TrackLocal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[kind]
	if !ok {
		return nil, false
	}
	return t, true
}

// Start feeds every track until ctx ends.
func (s *SyntheticSource) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		go t.Run(ctx)
	}
}
