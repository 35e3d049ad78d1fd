package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/Huddle/internal/domain"
)

func seqIDs(ids ...string) RoomIDSource {
	i := 0
	return func() (domain.RoomID, error) {
		if i >= len(ids) {
			return "", fmt.Errorf("sequence exhausted")
		}
		id := ids[i]
		i++
		return domain.RoomID(id), nil
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func findEvent(events []Event, k EventKind) (Event, bool) {
	for _, e := range events {
		if e.Kind == k {
			return e, true
		}
	}
	return Event{}, false
}

func mustCreate(t *testing.T, d *Directory, conn domain.ConnID, identity string) domain.RoomID {
	t.Helper()
	id, _, err := d.CreateRoom(conn, identity)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return id
}

func mustAdmit(t *testing.T, d *Directory, id domain.RoomID, identity string, conn domain.ConnID) AdmitResult {
	t.Helper()
	res := d.Admit(id, identity, conn)
	if !res.Accepted {
		t.Fatalf("admit %s: %v", identity, res.Reason)
	}
	return res
}

func TestCreateRoomMakesCallerHost(t *testing.T) {
	d := NewDirectory(nil)
	id, events, err := d.CreateRoom("c1", "  Alice ")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !domain.ValidRoomID(string(id)) {
		t.Fatalf("room id %q has wrong shape", id)
	}
	if len(events) != 1 || events[0].Kind != EventParticipantsUpdated {
		t.Fatalf("events = %v", kinds(events))
	}
	ps, _ := d.Participants(id)
	if len(ps) != 1 || ps[0].Identity != "Alice" || !ps[0].Host {
		t.Fatalf("participants = %+v", ps)
	}
}

func TestCreateRoomRejectsBadIdentity(t *testing.T) {
	d := NewDirectory(nil)
	_, _, err := d.CreateRoom("c1", "   ")
	if !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Fatalf("err = %v, want invalid identity", err)
	}
	if len(d.Rooms()) != 0 {
		t.Fatalf("room created despite bad identity")
	}
}

func TestAdmitCapacity(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "c0", "p0")
	for i := 1; i < domain.MaxRoomSize; i++ {
		mustAdmit(t, d, id, fmt.Sprintf("p%d", i), domain.ConnID(fmt.Sprintf("c%d", i)))
	}
	if exists, full := d.RoomExists(id); !exists || !full {
		t.Fatalf("RoomExists = %v,%v, want true,true", exists, full)
	}

	before, _ := d.Participants(id)
	res := d.Admit(id, "late", "c9")
	if res.Accepted || !errors.Is(res.Reason, domain.ErrRoomFull) {
		t.Fatalf("admit to full room: accepted=%v reason=%v", res.Accepted, res.Reason)
	}
	if len(res.Events) != 0 {
		t.Fatalf("rejected admit emitted %v", kinds(res.Events))
	}
	after, _ := d.Participants(id)
	if len(after) != len(before) {
		t.Fatalf("room mutated by rejected join: %d -> %d", len(before), len(after))
	}
	if _, in := d.RoomOf("c9"); in {
		t.Fatalf("rejected connection is mapped to a room")
	}
}

func TestAdmitUnknownRoom(t *testing.T) {
	d := NewDirectory(nil)
	res := d.Admit("NOPE00000", "Bob", "c1")
	if res.Accepted || !errors.Is(res.Reason, domain.ErrRoomNotFound) {
		t.Fatalf("accepted=%v reason=%v", res.Accepted, res.Reason)
	}
	if !IsAdmission(res.Reason) {
		t.Fatalf("reason is not an AdmissionError: %T", res.Reason)
	}
}

func TestAdmitListsExistingAndNotifiesOthers(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "a", "Alice")
	res := mustAdmit(t, d, id, "Bob", "b")

	if res.Rebound {
		t.Fatalf("fresh join reported as rebind")
	}
	if len(res.Existing) != 1 || res.Existing[0].ConnID != "a" || res.Existing[0].Identity != "Alice" {
		t.Fatalf("existing = %+v", res.Existing)
	}
	if res.Host != "a" {
		t.Fatalf("host = %s, want a", res.Host)
	}
	joined, ok := findEvent(res.Events, EventParticipantJoined)
	if !ok || joined.Exclude != "b" || joined.Subject.Identity != "Bob" {
		t.Fatalf("participant-joined = %+v (found %v)", joined, ok)
	}
	upd, ok := findEvent(res.Events, EventParticipantsUpdated)
	if !ok || len(upd.Participants) != 2 {
		t.Fatalf("participants-updated = %+v", upd)
	}
}

func TestRoomIDsAreNeverReused(t *testing.T) {
	d := NewDirectory(seqIDs("AAAAAAAAA", "AAAAAAAAA", "BBBBBBBBB"))
	first := mustCreate(t, d, "c1", "Alice")
	d.Remove("c1", ReasonLeave)
	if exists, _ := d.RoomExists(first); exists {
		t.Fatalf("empty room %s still exists", first)
	}
	second := mustCreate(t, d, "c2", "Bob")
	if second == first {
		t.Fatalf("room id %s reused", first)
	}
	if second != "BBBBBBBBB" {
		t.Fatalf("second = %s", second)
	}
}

func TestRoomIDExhaustion(t *testing.T) {
	d := NewDirectory(func() (domain.RoomID, error) { return "SAMESAME1", nil })
	mustCreate(t, d, "c1", "Alice")
	_, _, err := d.CreateRoom("c2", "Bob")
	if !errors.Is(err, domain.ErrRoomIDExhausted) {
		t.Fatalf("err = %v, want exhausted", err)
	}
	if _, in := d.RoomOf("c2"); in {
		t.Fatalf("failed create left a mapping")
	}
}

func TestRebindPreservesJoinOrderAndHost(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "a", "Alice")
	mustAdmit(t, d, id, "Bob", "b1")
	mustAdmit(t, d, id, "Carol", "c")
	before, _ := d.Participants(id)

	res := mustAdmit(t, d, id, "Bob", "b2")
	if !res.Rebound {
		t.Fatalf("expected rebind")
	}
	after, _ := d.Participants(id)
	if len(after) != len(before) {
		t.Fatalf("len %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Identity != after[i].Identity || before[i].JoinOrder != after[i].JoinOrder {
			t.Fatalf("slot %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	if after[1].ConnID != "b2" {
		t.Fatalf("Bob conn = %s, want b2", after[1].ConnID)
	}
	ev, ok := findEvent(res.Events, EventIdentityRebound)
	if !ok || ev.OldConn != "b1" || ev.Subject.ConnID != "b2" || ev.Exclude != "b2" {
		t.Fatalf("identity-rebound = %+v", ev)
	}
	if len(res.Existing) != 2 {
		t.Fatalf("existing = %+v", res.Existing)
	}

	// The stale connection closing later must not evict the rebound participant.
	if events := d.Remove("b1", ReasonDisconnect); len(events) != 0 {
		t.Fatalf("stale remove emitted %v", kinds(events))
	}
	if ps, _ := d.Participants(id); len(ps) != 3 {
		t.Fatalf("participants after stale remove = %+v", ps)
	}
}

func TestRebindOfHostKeepsHost(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "a1", "Alice")
	mustAdmit(t, d, id, "Bob", "b")
	res := mustAdmit(t, d, id, "Alice", "a2")
	if res.Host != "a2" {
		t.Fatalf("host = %s, want a2", res.Host)
	}
	if _, err := d.Kick("a2", "b"); err != nil {
		t.Fatalf("rebound host cannot kick: %v", err)
	}
}

func TestRebindIntoFullRoom(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "c0", "p0")
	for i := 1; i < domain.MaxRoomSize; i++ {
		mustAdmit(t, d, id, fmt.Sprintf("p%d", i), domain.ConnID(fmt.Sprintf("c%d", i)))
	}
	res := d.Admit(id, "p2", "c2-new")
	if !res.Accepted || !res.Rebound {
		t.Fatalf("rebind into full room rejected: %v", res.Reason)
	}
}

func TestHostMigrationIsDeterministic(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "a", "Alice")
	mustAdmit(t, d, id, "Bob", "b")
	mustAdmit(t, d, id, "Carol", "c")

	events := d.Remove("a", ReasonDisconnect)
	want := []EventKind{EventParticipantLeft, EventHostChanged, EventParticipantsUpdated}
	if got := kinds(events); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	hc := events[1]
	if hc.Host != "b" || hc.To != "" || hc.Exclude != "" {
		t.Fatalf("host-changed = %+v, want broadcast with host b", hc)
	}
	if events[0].Reason != ReasonDisconnect || events[0].Subject.Identity != "Alice" {
		t.Fatalf("participant-left = %+v", events[0])
	}

	events = d.Remove("c", ReasonLeave)
	if _, ok := findEvent(events, EventHostChanged); ok {
		t.Fatalf("non-host leave changed host")
	}
	events = d.Remove("b", ReasonLeave)
	if len(events) != 0 {
		t.Fatalf("last leave emitted %v", kinds(events))
	}
	if exists, _ := d.RoomExists(id); exists {
		t.Fatalf("empty room not deleted")
	}
}

func TestKickAuthorization(t *testing.T) {
	d := NewDirectory(nil)
	id := mustCreate(t, d, "a", "Alice")
	mustAdmit(t, d, id, "Bob", "b")
	mustAdmit(t, d, id, "Carol", "c")

	events, err := d.Kick("b", "c")
	if !errors.Is(err, domain.ErrUnauthorized) || len(events) != 0 {
		t.Fatalf("non-host kick: events=%v err=%v", kinds(events), err)
	}
	if ps, _ := d.Participants(id); len(ps) != 3 {
		t.Fatalf("membership changed by unauthorized kick")
	}
	if _, err := d.Kick("a", "a"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("self kick err = %v", err)
	}

	events, err = d.Kick("a", "c")
	if err != nil {
		t.Fatalf("host kick: %v", err)
	}
	if events[0].Kind != EventParticipantKicked || events[0].To != "c" {
		t.Fatalf("first event = %+v, want kicked addressed to c", events[0])
	}
	left, ok := findEvent(events, EventParticipantLeft)
	if !ok || left.Reason != ReasonKicked {
		t.Fatalf("participant-left = %+v", left)
	}
	if _, in := d.RoomOf("c"); in {
		t.Fatalf("kicked connection still mapped")
	}
}

func TestJoinWhileSeatedElsewhereLeavesFirst(t *testing.T) {
	d := NewDirectory(nil)
	r1 := mustCreate(t, d, "a", "Alice")
	mustAdmit(t, d, r1, "Bob", "b")
	r2 := mustCreate(t, d, "c", "Carol")

	res := mustAdmit(t, d, r2, "Bob", "b")
	if left, ok := findEvent(res.Events, EventParticipantLeft); !ok || left.RoomID != r1 {
		t.Fatalf("no leave from previous room: %+v", res.Events)
	}
	if room, _ := d.RoomOf("b"); room != r2 {
		t.Fatalf("b in %s, want %s", room, r2)
	}
	if ps, _ := d.Participants(r1); len(ps) != 1 {
		t.Fatalf("r1 = %+v", ps)
	}
}

func TestRoomsListing(t *testing.T) {
	d := NewDirectory(seqIDs("BBBBBBBBB", "AAAAAAAAA"))
	mustCreate(t, d, "b", "Bob")
	mustCreate(t, d, "a", "Alice")
	rooms := d.Rooms()
	if len(rooms) != 2 || rooms[0].ID != "AAAAAAAAA" || rooms[0].Host != "Alice" {
		t.Fatalf("rooms = %+v", rooms)
	}
	if snap := d.Snapshot(); len(snap) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCryptoRoomIDShape(t *testing.T) {
	seen := make(map[domain.RoomID]bool)
	for range 200 {
		id, err := CryptoRoomID()
		if err != nil {
			t.Fatalf("CryptoRoomID: %v", err)
		}
		if !domain.ValidRoomID(string(id)) {
			t.Fatalf("bad id %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 199 {
		t.Fatalf("suspicious collisions: %d unique of 200", len(seen))
	}
	if domain.ValidRoomID("abc") || domain.ValidRoomID("abcdefghi") {
		t.Fatalf("ValidRoomID accepted malformed input")
	}
}
