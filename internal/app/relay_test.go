package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

type fakeSignal struct {
	frames []core.Frame
	limit  int
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	if f.closed {
		return core.ErrConnClosed
	}
	if f.limit > 0 && len(f.frames) >= f.limit {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() { f.closed = true }

func (f *fakeSignal) types(t *testing.T) []protocol.Type {
	t.Helper()
	out := make([]protocol.Type, 0, len(f.frames))
	for _, fr := range f.frames {
		m, err := protocol.Parse(fr)
		if err != nil {
			t.Fatalf("parse frame %s: %v", fr, err)
		}
		out = append(out, m.Type)
	}
	return out
}

type fixture struct {
	dir   *core.Directory
	reg   *Registry
	relay *Relay
	sigs  map[domain.ConnID]*fakeSignal
}

func newFixture(conns ...domain.ConnID) *fixture {
	f := &fixture{
		dir:  core.NewDirectory(nil),
		reg:  NewRegistry(),
		sigs: make(map[domain.ConnID]*fakeSignal),
	}
	f.relay = NewRelay(f.reg, f.dir)
	for _, c := range conns {
		s := &fakeSignal{}
		f.sigs[c] = s
		f.reg.Bind(c, s, nil, "token-"+string(c))
	}
	return f
}

func (f *fixture) room(t *testing.T, host domain.ConnID, guests ...domain.ConnID) domain.RoomID {
	t.Helper()
	id, _, err := f.dir.CreateRoom(host, string(host))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, g := range guests {
		if res := f.dir.Admit(id, string(g), g); !res.Accepted {
			t.Fatalf("admit %s: %v", g, res.Reason)
		}
	}
	return id
}

func TestRelayForwardsPayloadUnchanged(t *testing.T) {
	f := newFixture("a", "b", "c")
	f.room(t, "a", "b", "c")

	payload := json.RawMessage(`{"sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1","streams":{"x":"screen-stream"},"weird":"<&>"}`)
	ok, slow := f.relay.Relay("a", protocol.Message{
		Type:         protocol.TypeOffer,
		Target:       "b",
		MediaContext: protocol.ScreenStream,
		Payload:      payload,
	})
	if !ok || len(slow) != 0 {
		t.Fatalf("relay ok=%v slow=%v", ok, slow)
	}
	if len(f.sigs["a"].frames) != 0 || len(f.sigs["c"].frames) != 0 {
		t.Fatalf("relay touched bystanders")
	}
	frames := f.sigs["b"].frames
	if len(frames) != 1 {
		t.Fatalf("target frames = %d", len(frames))
	}
	if !bytes.Contains(frames[0], payload) {
		t.Fatalf("payload altered: %s", frames[0])
	}
	got, _ := protocol.Parse(frames[0])
	if got.Sender != "a" || got.Target != "" || got.MediaContext != protocol.ScreenStream {
		t.Fatalf("delivered %+v", got)
	}
}

func TestRelayKeepsPayloadFormatting(t *testing.T) {
	f := newFixture("a", "b")
	f.room(t, "a", "b")

	payload := "{\n  \"type\": \"offer\",\n  \"sdp\": \"v=0\"\n}"
	msg, err := protocol.Decode([]byte(`{"type":"offer","target":"b","mediaContext":"camera-stream","payload":` + payload + `}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok, _ := f.relay.Relay("a", msg); !ok {
		t.Fatalf("not relayed")
	}
	frames := f.sigs["b"].frames
	if len(frames) != 1 || !bytes.Contains(frames[0], []byte(payload)) {
		t.Fatalf("payload not forwarded byte-for-byte: %s", frames)
	}
}

func TestRelayDropsOutsideRoom(t *testing.T) {
	f := newFixture("a", "b", "x", "y")
	f.room(t, "a", "b")
	f.room(t, "x")

	msg := protocol.Message{Type: protocol.TypeICECandidate, Target: "x", Payload: json.RawMessage(`{}`)}
	if ok, _ := f.relay.Relay("a", msg); ok {
		t.Fatalf("relayed across rooms")
	}
	msg.Target = "gone"
	if ok, _ := f.relay.Relay("a", msg); ok {
		t.Fatalf("relayed to unknown target")
	}
	msg.Target = "a"
	if ok, _ := f.relay.Relay("y", msg); ok {
		t.Fatalf("relayed from a connection outside any room")
	}
	for id, s := range f.sigs {
		if len(s.frames) != 0 {
			t.Fatalf("%s received %d frames", id, len(s.frames))
		}
	}
}

func TestRelayReportsBackpressure(t *testing.T) {
	f := newFixture("a", "b")
	f.room(t, "a", "b")
	f.sigs["b"].limit = 1
	msg := protocol.Message{Type: protocol.TypeICECandidate, Target: "b", Payload: json.RawMessage(`{}`)}
	f.relay.Relay("a", msg)
	ok, slow := f.relay.Relay("a", msg)
	if ok || len(slow) != 1 || slow[0] != "b" {
		t.Fatalf("ok=%v slow=%v", ok, slow)
	}
}

func TestDeliverRoutesEvents(t *testing.T) {
	f := newFixture("a", "b", "c")
	id := f.room(t, "a", "b", "c")

	events, err := f.dir.Kick("a", "c")
	if err != nil {
		t.Fatalf("kick: %v", err)
	}
	f.relay.Deliver(events)

	if got := f.sigs["c"].types(t); len(got) != 1 || got[0] != protocol.TypeParticipantKicked {
		t.Fatalf("kicked target got %v", got)
	}
	want := []protocol.Type{protocol.TypeParticipantLeft, protocol.TypeParticipantsUpdated}
	for _, c := range []domain.ConnID{"a", "b"} {
		got := f.sigs[c].types(t)
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("%s got %v, want %v", c, got, want)
		}
	}
	m, _ := protocol.Parse(f.sigs["b"].frames[0])
	if m.Reason != string(core.ReasonKicked) || m.ConnectionID != "c" || m.RoomID != id {
		t.Fatalf("participant-left = %+v", m)
	}
}

func TestBroadcastExcludes(t *testing.T) {
	f := newFixture("a", "b")
	id := f.room(t, "a", "b")
	f.relay.Broadcast(id, protocol.Message{Type: protocol.TypePong}, "a")
	if len(f.sigs["a"].frames) != 0 || len(f.sigs["b"].frames) != 1 {
		t.Fatalf("a=%d b=%d", len(f.sigs["a"].frames), len(f.sigs["b"].frames))
	}
}
