package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrIdentityEmpty   = fmt.Errorf("%w: empty", ErrInvalidIdentity)
	ErrIdentityTooLong = fmt.Errorf("%w: too long", ErrInvalidIdentity)
	ErrInvalidRoomID   = errors.New("invalid room id")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotInRoom       = errors.New("not in a room")
	ErrRoomIDExhausted = errors.New("room id space exhausted")
)

// AdmissionError is reported to the requesting client only.
type AdmissionError struct {
	RoomID RoomID
	Err    error
}

func (e *AdmissionError) Error() string {
	if e.RoomID == "" {
		return fmt.Sprintf("admission: %v", e.Err)
	}
	return fmt.Sprintf("admission to %s: %v", e.RoomID, e.Err)
}

func (e *AdmissionError) Unwrap() error { return e.Err }
