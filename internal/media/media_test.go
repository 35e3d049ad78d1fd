package media

import (
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/protocol"
)

func TestScreenCeilingAboveCamera(t *testing.T) {
	cam, scr := LimitsFor(Camera), LimitsFor(Screen)
	if scr.MaxBitrate <= cam.MaxBitrate {
		t.Fatalf("screen %d <= camera %d", scr.MaxBitrate, cam.MaxBitrate)
	}
	if LimitsFor(Mic).MaxBitrate != 64_000 {
		t.Fatalf("mic limit = %+v", LimitsFor(Mic))
	}
}

func TestKindContextAndHint(t *testing.T) {
	if Screen.Context() != protocol.ScreenStream || Camera.Context() != protocol.CameraStream || Mic.Context() != protocol.CameraStream {
		t.Fatalf("contexts wrong")
	}
	if HintFor(Screen) != HintDetail || HintFor(Camera) != HintMotion || HintFor(Mic) != HintSpeech {
		t.Fatalf("hints wrong")
	}
}

func TestSyntheticSource(t *testing.T) {
	src, err := NewSyntheticSource("alice", Mic, Screen)
	if err != nil {
		t.Fatalf("NewSyntheticSource: %v", err)
	}
	if _, ok := src.Track(Camera); ok {
		t.Fatalf("camera should be off")
	}
	tr, ok := src.Track(Screen)
	if !ok {
		t.Fatalf("screen missing")
	}
	if tr.StreamID() != "alice-screen" || tr.Kind().String() != "video" {
		t.Fatalf("screen track stream=%s kind=%s", tr.StreamID(), tr.Kind())
	}
	mic, _ := src.Track(Mic)
	if mic.StreamID() != "alice-camera" {
		t.Fatalf("mic stream = %s", mic.StreamID())
	}
	var _ ContentHinter = tr.(*SyntheticTrack)
}

func TestPaceStaysUnderLimits(t *testing.T) {
	interval, step, size := pace(Mic, LimitsFor(Mic))
	if interval != 20*time.Millisecond || step != 960 || size != 160 {
		t.Fatalf("mic pace = %v %d %d", interval, step, size)
	}
	interval, step, size = pace(Camera, EncodingLimits{MaxBitrate: 48_000, MaxFramerate: 10})
	if interval != 100*time.Millisecond || step != 9000 || size != 600 {
		t.Fatalf("capped camera pace = %v %d %d", interval, step, size)
	}
	if _, _, size = pace(Screen, LimitsFor(Screen)); size != maxPayload {
		t.Fatalf("screen payload = %d", size)
	}
}

func TestSyntheticTrackTakesLimits(t *testing.T) {
	tr, err := NewSyntheticTrack("alice", Camera)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Limits() != LimitsFor(Camera) {
		t.Fatalf("default limits = %+v", tr.Limits())
	}
	var lim Limiter = tr
	lim.SetLimits(EncodingLimits{MaxBitrate: 100_000, MaxFramerate: 5})
	if tr.Limits().MaxFramerate != 5 {
		t.Fatalf("limits = %+v", tr.Limits())
	}
}
