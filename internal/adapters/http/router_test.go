package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:             "test",
		StaticPath:       "./web",
		ReadLimit:        65536,
		PingPeriod:       time.Second,
		PongWait:         2 * time.Second,
		WriteWait:        time.Second,
		Secret:           "test-secret",
		SendBuffer:       32,
		JoinRateLimit:    100,
		JoinRateInterval: time.Minute,
		RejoinGrace:      5 * time.Second,
		ICEServers:       []config.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	o := orch.New(app.NewRegistry(), core.NewDirectory(nil), app.SimplePolicy{})
	o.Grace = cfg.RejoinGrace
	go func() { _ = o.Run(ctx) }()

	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, m protocol.Message) {
	t.Helper()
	b, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// await reads frames until one of type typ arrives.
func await(t *testing.T, ws *websocket.Conn, typ protocol.Type, match func(protocol.Message) bool) protocol.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		m, err := protocol.Parse(data)
		if err != nil {
			t.Fatalf("parse %s: %v", data, err)
		}
		if m.Type == typ && (match == nil || match(m)) {
			return m
		}
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestMeetingScenario(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	send(t, alice, protocol.Message{Type: protocol.TypeCreateRoom, Identity: "Alice"})
	created := await(t, alice, protocol.TypeRoomCreated, nil)
	room := created.RoomID
	if !domain.ValidRoomID(string(room)) {
		t.Fatalf("room id %q", room)
	}

	var exists struct {
		Exists bool `json:"exists"`
		Full   bool `json:"full"`
	}
	if code := getJSON(t, srv.URL+"/api/rooms/"+string(room)+"/exists", &exists); code != http.StatusOK {
		t.Fatalf("exists status %d", code)
	}
	if !exists.Exists || exists.Full {
		t.Fatalf("exists = %+v", exists)
	}

	bob := dial(t, srv)
	send(t, bob, protocol.Message{Type: protocol.TypeRoomExists, RoomID: room})
	re := await(t, bob, protocol.TypeRoomExists, nil)
	if re.Exists == nil || !*re.Exists || re.Full == nil || *re.Full {
		t.Fatalf("room-exists = %+v", re)
	}

	send(t, bob, protocol.Message{Type: protocol.TypeJoinRoom, RoomID: room, Identity: "Bob"})
	acc := await(t, bob, protocol.TypeJoinAccepted, nil)
	if len(acc.Participants) != 1 || acc.Participants[0].Identity != "Alice" {
		t.Fatalf("join-accepted = %+v", acc)
	}
	firstBob := acc.SelfID

	upd := await(t, alice, protocol.TypeParticipantsUpdated, func(m protocol.Message) bool {
		return len(m.Participants) == 2
	})
	if upd.Participants[0].Identity != "Alice" || upd.Participants[1].Identity != "Bob" {
		t.Fatalf("participants-updated = %+v", upd.Participants)
	}
	bobOrder := upd.Participants[1].JoinOrder

	// Bob drops and comes back under the same identity.
	_ = bob.Close()
	bob2 := dial(t, srv)
	send(t, bob2, protocol.Message{Type: protocol.TypeJoinRoom, RoomID: room, Identity: "Bob"})
	acc = await(t, bob2, protocol.TypeJoinAccepted, nil)
	if !acc.Rebound || acc.SelfID == firstBob {
		t.Fatalf("rejoin = %+v", acc)
	}
	rb := await(t, alice, protocol.TypeIdentityRebound, nil)
	if rb.OldConnectionID != firstBob || rb.ConnectionID != acc.SelfID {
		t.Fatalf("identity-rebound = %+v", rb)
	}

	var listing struct {
		Participants []domain.ParticipantView `json:"participants"`
	}
	getJSON(t, srv.URL+"/api/rooms/"+string(room)+"/participants", &listing)
	ps := listing.Participants
	if len(ps) != 2 || ps[0].Identity != "Alice" || ps[1].Identity != "Bob" {
		t.Fatalf("participants = %+v", ps)
	}
	if ps[1].JoinOrder != bobOrder || ps[1].ConnID != acc.SelfID {
		t.Fatalf("Bob = %+v, want joinOrder %d conn %s", ps[1], bobOrder, acc.SelfID)
	}
}

func TestNegotiationRelayOverSockets(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	send(t, alice, protocol.Message{Type: protocol.TypeCreateRoom, Identity: "Alice"})
	created := await(t, alice, protocol.TypeRoomCreated, nil)

	bob := dial(t, srv)
	send(t, bob, protocol.Message{Type: protocol.TypeJoinRoom, RoomID: created.RoomID, Identity: "Bob"})
	await(t, bob, protocol.TypeJoinAccepted, nil)

	payload := json.RawMessage(`{"sdp":"v=0\r\na=mid:0","streams":{"abc":"camera-stream"}}`)
	send(t, alice, protocol.Message{
		Type:         protocol.TypeOffer,
		Target:       mustJoinedID(t, alice),
		MediaContext: protocol.CameraStream,
		Payload:      payload,
	})
	got := await(t, bob, protocol.TypeOffer, nil)
	if got.Sender != created.SelfID || !bytes.Equal(got.Payload, payload) {
		t.Fatalf("offer = %+v", got)
	}
}

// mustJoinedID waits for the participant-joined notice and returns the newcomer's ID.
func mustJoinedID(t *testing.T, ws *websocket.Conn) domain.ConnID {
	t.Helper()
	return await(t, ws, protocol.TypeParticipantJoined, nil).ConnectionID
}

func TestBadFrameAnsweredInBand(t *testing.T) {
	srv := newTestServer(t)
	ws := dial(t, srv)
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"join-room","roomId":"x","bogus":true}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := await(t, ws, protocol.TypeError, nil)
	if e.Code != protocol.CodeBadPayload {
		t.Fatalf("error = %+v", e)
	}
	send(t, ws, protocol.Message{Type: protocol.TypePing})
	await(t, ws, protocol.TypePong, nil)
}

func TestRESTSurface(t *testing.T) {
	srv := newTestServer(t)

	var legacy map[string]bool
	getJSON(t, srv.URL+"/api/rooms-exists/ABCDEFGHI", &legacy)
	if legacy["roomExists"] || legacy["full"] {
		t.Fatalf("legacy = %+v", legacy)
	}
	if code := getJSON(t, srv.URL+"/api/rooms/short/exists", nil); code != http.StatusBadRequest {
		t.Fatalf("bad room id status %d", code)
	}
	if code := getJSON(t, srv.URL+"/api/rooms/ABCDEFGHI/participants", nil); code != http.StatusNotFound {
		t.Fatalf("unknown room participants status %d", code)
	}

	var ice struct {
		ICEServers []config.ICEServer `json:"iceServers"`
	}
	getJSON(t, srv.URL+"/api/ice-servers", &ice)
	if len(ice.ICEServers) != 1 || ice.ICEServers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Fatalf("ice = %+v", ice)
	}

	var rooms struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	getJSON(t, srv.URL+"/api/rooms", &rooms)
	if len(rooms.Rooms) != 0 {
		t.Fatalf("rooms = %+v", rooms)
	}
	if code := getJSON(t, srv.URL+"/health", nil); code != http.StatusOK {
		t.Fatalf("health %d", code)
	}
}

func TestIdentityRememberedInSession(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/identity", strings.NewReader(`{"identity":"  Bob "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status %d", resp.StatusCode)
	}

	get, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/identity", nil)
	for _, c := range resp.Cookies() {
		get.AddCookie(c)
	}
	resp, err = http.DefaultClient.Do(get)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Identity != "Bob" {
		t.Fatalf("identity = %q", body.Identity)
	}

	bad, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/identity", strings.NewReader(`{"identity":""}`))
	bad.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(bad)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty identity status %d", resp.StatusCode)
	}
}
