package domain

type RoomID string

// Room keeps participants ordered by JoinOrder.
// The host is stored by identity so that a rebind keeps host status.
type Room struct {
	ID           RoomID
	Participants []*Participant
	HostIdentity string
	nextOrder    uint64
}

func NewRoom(id RoomID) *Room {
	return &Room{ID: id}
}

func (r *Room) Len() int { return len(r.Participants) }

func (r *Room) Full() bool { return len(r.Participants) >= MaxRoomSize }

// Append adds a participant at the end of the join order.
func (r *Room) Append(conn ConnID, identity string) *Participant {
	r.nextOrder++
	p := &Participant{ConnID: conn, Identity: identity, JoinOrder: r.nextOrder}
	r.Participants = append(r.Participants, p)
	if r.HostIdentity == "" {
		r.HostIdentity = identity
	}
	return p
}

func (r *Room) ByIdentity(identity string) *Participant {
	for _, p := range r.Participants {
		if p.Identity == identity {
			return p
		}
	}
	return nil
}

func (r *Room) ByConn(conn ConnID) *Participant {
	for _, p := range r.Participants {
		if p.ConnID == conn {
			return p
		}
	}
	return nil
}

func (r *Room) Host() *Participant {
	return r.ByIdentity(r.HostIdentity)
}

// Remove drops the participant bound to conn and migrates host to the
// earliest remaining join order. hostChanged is false when the room emptied.
func (r *Room) Remove(conn ConnID) (removed *Participant, hostChanged bool) {
	idx := -1
	for i, p := range r.Participants {
		if p.ConnID == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	removed = r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	if removed.Identity != r.HostIdentity {
		return removed, false
	}
	if len(r.Participants) == 0 {
		r.HostIdentity = ""
		return removed, false
	}
	// Participants stay sorted by JoinOrder, so the head is the earliest.
	r.HostIdentity = r.Participants[0].Identity
	return removed, true
}

func (r *Room) View() []ParticipantView {
	out := make([]ParticipantView, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, ParticipantView{
			ConnID:    p.ConnID,
			Identity:  p.Identity,
			JoinOrder: p.JoinOrder,
			Host:      p.Identity == r.HostIdentity,
		})
	}
	return out
}

// ValidRoomID reports whether id is a well-formed room token.
func ValidRoomID(id string) bool {
	if len(id) != RoomIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
