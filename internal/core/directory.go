package core

import (
	"errors"
	"sort"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxRoomIDAttempts = 64

// AdmitResult is the outcome of a join attempt.
type AdmitResult struct {
	Accepted bool
	Reason   error
	Rebound  bool
	RoomID   domain.RoomID
	Self     domain.ParticipantView
	// Existing lists every other participant, in join order.
	Existing []domain.ParticipantView
	Host     domain.ConnID
	Events   []Event
}

// RoomInfo is a listing entry.
type RoomInfo struct {
	ID   domain.RoomID `json:"roomId"`
	Size int           `json:"size"`
	Full bool          `json:"full"`
	Host string        `json:"host"`
}

// Directory is the authoritative table of rooms and participants.
// It is not safe for concurrent use; a single owner serializes all calls.
type Directory struct {
	rooms  map[domain.RoomID]*domain.Room
	byConn map[domain.ConnID]domain.RoomID
	issued map[domain.RoomID]struct{}
	newID  RoomIDSource
}

func NewDirectory(src RoomIDSource) *Directory {
	if src == nil {
		src = CryptoRoomID
	}
	return &Directory{
		rooms:  make(map[domain.RoomID]*domain.Room),
		byConn: make(map[domain.ConnID]domain.RoomID),
		issued: make(map[domain.RoomID]struct{}),
		newID:  src,
	}
}

func (d *Directory) allocateID() (domain.RoomID, error) {
	for range maxRoomIDAttempts {
		id, err := d.newID()
		if err != nil {
			return "", err
		}
		if _, used := d.issued[id]; used {
			continue
		}
		if _, live := d.rooms[id]; live {
			continue
		}
		d.issued[id] = struct{}{}
		return id, nil
	}
	return "", domain.ErrRoomIDExhausted
}

// CreateRoom opens a new room hosted by conn. A connection that already sits
// in a room leaves it first.
func (d *Directory) CreateRoom(conn domain.ConnID, identity string) (domain.RoomID, []Event, error) {
	identity, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return "", nil, &domain.AdmissionError{Err: err}
	}
	id, err := d.allocateID()
	if err != nil {
		return "", nil, err
	}
	events := d.Remove(conn, ReasonLeave)

	room := domain.NewRoom(id)
	room.Append(conn, identity)
	d.rooms[id] = room
	d.byConn[conn] = id

	events = append(events, Event{
		Kind:         EventParticipantsUpdated,
		RoomID:       id,
		Participants: room.View(),
	})
	log.Info().Str("module", "core.directory").Str("room", string(id)).Str("conn", string(conn)).Msg("room created")
	return id, events, nil
}

// Admit evaluates a join request: rebind, then admit, then reject.
func (d *Directory) Admit(roomID domain.RoomID, identity string, conn domain.ConnID) AdmitResult {
	res := AdmitResult{RoomID: roomID}
	identity, err := domain.NormalizeIdentity(identity)
	if err != nil {
		res.Reason = &domain.AdmissionError{RoomID: roomID, Err: err}
		return res
	}
	room, ok := d.rooms[roomID]
	if !ok {
		res.Reason = &domain.AdmissionError{RoomID: roomID, Err: domain.ErrRoomNotFound}
		return res
	}

	if p := room.ByIdentity(identity); p != nil {
		return d.rebind(room, p, conn)
	}

	if room.Full() {
		res.Reason = &domain.AdmissionError{RoomID: roomID, Err: domain.ErrRoomFull}
		return res
	}

	if cur, in := d.byConn[conn]; in && cur != roomID {
		res.Events = append(res.Events, d.Remove(conn, ReasonLeave)...)
	} else if in {
		// Same room under a different identity: drop the old seat first.
		res.Events = append(res.Events, d.Remove(conn, ReasonLeave)...)
		if room, ok = d.rooms[roomID]; !ok {
			res.Reason = &domain.AdmissionError{RoomID: roomID, Err: domain.ErrRoomNotFound}
			return res
		}
	}

	p := room.Append(conn, identity)
	d.byConn[conn] = roomID
	view := room.View()

	res.Accepted = true
	res.Self = viewOf(view, p.ConnID)
	res.Existing = others(view, conn)
	res.Host = room.Host().ConnID
	res.Events = append(res.Events,
		Event{
			Kind:    EventParticipantJoined,
			RoomID:  roomID,
			Exclude: conn,
			Subject: res.Self,
		},
		Event{
			Kind:         EventParticipantsUpdated,
			RoomID:       roomID,
			Participants: view,
		},
	)
	log.Info().Str("module", "core.directory").Str("room", string(roomID)).Str("conn", string(conn)).
		Int("size", room.Len()).Msg("participant admitted")
	return res
}

func (d *Directory) rebind(room *domain.Room, p *domain.Participant, conn domain.ConnID) AdmitResult {
	res := AdmitResult{RoomID: room.ID, Accepted: true, Rebound: true}
	old := p.ConnID
	if old != conn {
		var pre []Event
		if _, in := d.byConn[conn]; in {
			// conn was seated elsewhere (another room or identity); vacate it.
			pre = d.Remove(conn, ReasonLeave)
		}
		delete(d.byConn, old)
		p.ConnID = conn
		d.byConn[conn] = room.ID
		res.Events = append(pre, Event{
			Kind:    EventIdentityRebound,
			RoomID:  room.ID,
			Exclude: conn,
			OldConn: old,
			Subject: viewOf(room.View(), conn),
		})
	}
	view := room.View()
	res.Self = viewOf(view, conn)
	res.Existing = others(view, conn)
	res.Host = room.Host().ConnID
	res.Events = append(res.Events, Event{
		Kind:         EventParticipantsUpdated,
		RoomID:       room.ID,
		Participants: view,
	})
	log.Info().Str("module", "core.directory").Str("room", string(room.ID)).Str("old", string(old)).
		Str("conn", string(conn)).Msg("participant rebound")
	return res
}

// Remove detaches conn from its room. Unknown connections, including ones
// superseded by a rebind, produce no events.
func (d *Directory) Remove(conn domain.ConnID, reason LeaveReason) []Event {
	roomID, ok := d.byConn[conn]
	if !ok {
		return nil
	}
	delete(d.byConn, conn)
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	removed, hostChanged := room.Remove(conn)
	if removed == nil {
		return nil
	}
	if room.Len() == 0 {
		delete(d.rooms, roomID)
		log.Info().Str("module", "core.directory").Str("room", string(roomID)).Msg("room closed")
		return nil
	}

	events := []Event{{
		Kind:    EventParticipantLeft,
		RoomID:  roomID,
		Subject: domain.ParticipantView{ConnID: removed.ConnID, Identity: removed.Identity, JoinOrder: removed.JoinOrder},
		Reason:  reason,
	}}
	if hostChanged {
		events = append(events, Event{
			Kind:   EventHostChanged,
			RoomID: roomID,
			Host:   room.Host().ConnID,
		})
	}
	events = append(events, Event{
		Kind:         EventParticipantsUpdated,
		RoomID:       roomID,
		Participants: room.View(),
	})
	log.Info().Str("module", "core.directory").Str("room", string(roomID)).Str("conn", string(conn)).
		Str("reason", string(reason)).Bool("host_changed", hostChanged).Msg("participant removed")
	return events
}

// Kick removes target on behalf of the host of target's room.
func (d *Directory) Kick(requester, target domain.ConnID) ([]Event, error) {
	roomID, ok := d.byConn[target]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	room := d.rooms[roomID]
	host := room.Host()
	if host == nil || host.ConnID != requester || requester == target {
		log.Warn().Str("module", "core.directory").Str("room", string(roomID)).Str("requester", string(requester)).
			Msg("kick refused")
		return nil, domain.ErrUnauthorized
	}
	events := []Event{{
		Kind:    EventParticipantKicked,
		RoomID:  roomID,
		To:      target,
		Subject: viewOf(room.View(), target),
	}}
	return append(events, d.Remove(target, ReasonKicked)...), nil
}

// RoomExists answers the pre-join query.
func (d *Directory) RoomExists(id domain.RoomID) (exists, full bool) {
	room, ok := d.rooms[id]
	if !ok {
		return false, false
	}
	return true, room.Full()
}

func (d *Directory) RoomOf(conn domain.ConnID) (domain.RoomID, bool) {
	id, ok := d.byConn[conn]
	return id, ok
}

// Members returns the live connections of a room in join order.
func (d *Directory) Members(id domain.RoomID) []domain.ConnID {
	room, ok := d.rooms[id]
	if !ok {
		return nil
	}
	out := make([]domain.ConnID, 0, room.Len())
	for _, p := range room.Participants {
		out = append(out, p.ConnID)
	}
	return out
}

func (d *Directory) Participants(id domain.RoomID) ([]domain.ParticipantView, error) {
	room, ok := d.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.View(), nil
}

// Lookup returns the participant bound to conn.
func (d *Directory) Lookup(conn domain.ConnID) (domain.RoomID, domain.ParticipantView, error) {
	id, ok := d.byConn[conn]
	if !ok {
		return "", domain.ParticipantView{}, domain.ErrNotInRoom
	}
	room := d.rooms[id]
	if room == nil {
		return "", domain.ParticipantView{}, domain.ErrNotInRoom
	}
	return id, viewOf(room.View(), conn), nil
}

func (d *Directory) Rooms() []RoomInfo {
	out := make([]RoomInfo, 0, len(d.rooms))
	for id, room := range d.rooms {
		info := RoomInfo{ID: id, Size: room.Len(), Full: room.Full()}
		if h := room.Host(); h != nil {
			info.Host = h.Identity
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns every room's participant list keyed by room ID.
func (d *Directory) Snapshot() map[domain.RoomID][]domain.ParticipantView {
	out := make(map[domain.RoomID][]domain.ParticipantView, len(d.rooms))
	for id, room := range d.rooms {
		out[id] = room.View()
	}
	return out
}

// IsAdmission reports whether err should be answered with join-rejected.
func IsAdmission(err error) bool {
	var ae *domain.AdmissionError
	return errors.As(err, &ae)
}

func viewOf(view []domain.ParticipantView, conn domain.ConnID) domain.ParticipantView {
	for _, v := range view {
		if v.ConnID == conn {
			return v
		}
	}
	return domain.ParticipantView{}
}

func others(view []domain.ParticipantView, conn domain.ConnID) []domain.ParticipantView {
	out := make([]domain.ParticipantView, 0, len(view))
	for _, v := range view {
		if v.ConnID != conn {
			out = append(out, v)
		}
	}
	return out
}
