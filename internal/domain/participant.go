package domain

// Participant is a logical occupant of a room, keyed by Identity.
// ConnID is volatile: a rebind swaps it while JoinOrder stays put.
type Participant struct {
	ConnID    ConnID
	Identity  string
	JoinOrder uint64
}

// ParticipantView is a read-only copy for APIs (no pointers into the directory).
type ParticipantView struct {
	ConnID    ConnID `json:"connectionId"`
	Identity  string `json:"identity"`
	JoinOrder uint64 `json:"joinOrder"`
	Host      bool   `json:"host"`
}
