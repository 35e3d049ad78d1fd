package core

import "github.com/dkeye/Huddle/internal/domain"

type EventKind int

const (
	EventParticipantsUpdated EventKind = iota
	EventParticipantJoined
	EventParticipantLeft
	EventHostChanged
	EventParticipantKicked
	EventIdentityRebound
)

func (k EventKind) String() string {
	switch k {
	case EventParticipantsUpdated:
		return "participants-updated"
	case EventParticipantJoined:
		return "participant-joined"
	case EventParticipantLeft:
		return "participant-left"
	case EventHostChanged:
		return "host-changed"
	case EventParticipantKicked:
		return "participant-kicked"
	case EventIdentityRebound:
		return "identity-rebound"
	default:
		return "unknown"
	}
}

type LeaveReason string

const (
	ReasonLeave      LeaveReason = "leave"
	ReasonDisconnect LeaveReason = "disconnect"
	ReasonKicked     LeaveReason = "kicked"
)

// Event is a directory notification scoped to one room.
// When To is set the event is addressed to that connection only,
// otherwise it goes to every member except Exclude.
type Event struct {
	Kind    EventKind
	RoomID  domain.RoomID
	To      domain.ConnID
	Exclude domain.ConnID

	Participants []domain.ParticipantView
	Subject      domain.ParticipantView
	OldConn      domain.ConnID
	Host         domain.ConnID
	Reason       LeaveReason
}
