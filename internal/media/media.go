// Package media describes local media kinds and their sending constraints.
// Device capture lives outside this module; it is consumed through Source.
package media

import (
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	Mic    Kind = "mic"
	Camera Kind = "camera"
	Screen Kind = "screen"
)

var Kinds = []Kind{Mic, Camera, Screen}

func (k Kind) Valid() bool { return k == Mic || k == Camera || k == Screen }

// Context is the negotiation purpose a kind belongs to. Mic and camera share
// the camera stream; screen share is negotiated on its own.
func (k Kind) Context() protocol.MediaContext {
	if k == Screen {
		return protocol.ScreenStream
	}
	return protocol.CameraStream
}

func (k Kind) CodecType() webrtc.RTPCodecType {
	if k == Mic {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// EncodingLimits caps one outgoing sender. Zero MaxFramerate means uncapped.
type EncodingLimits struct {
	MaxBitrate   uint64 // bits per second
	MaxFramerate float64
}

// LimitsFor returns the ceilings applied whenever a sender is created or
// its track replaced. Screen content gets a higher bitrate at a lower rate.
func LimitsFor(k Kind) EncodingLimits {
	switch k {
	case Mic:
		return EncodingLimits{MaxBitrate: 64_000}
	case Camera:
		return EncodingLimits{MaxBitrate: 1_200_000, MaxFramerate: 30}
	case Screen:
		return EncodingLimits{MaxBitrate: 2_500_000, MaxFramerate: 15}
	default:
		return EncodingLimits{}
	}
}

type ContentHint string

const (
	HintSpeech ContentHint = "speech"
	HintMotion ContentHint = "motion"
	HintDetail ContentHint = "detail"
)

func HintFor(k Kind) ContentHint {
	switch k {
	case Mic:
		return HintSpeech
	case Screen:
		return HintDetail
	default:
		return HintMotion
	}
}

// Limiter is implemented by tracks that pace their own output. Senders
// pass their limits down since pion has no encoding-parameter setter.
type Limiter interface {
	SetLimits(EncodingLimits)
}

// ContentHinter is implemented by tracks that accept an encoder hint.
type ContentHinter interface {
	SetContentHint(ContentHint)
	ContentHint() ContentHint
}

// Source is the local media collaborator. A missing kind means the device is off.
type Source interface {
	Track(kind Kind) (webrtc.TrackLocal, bool)
}
