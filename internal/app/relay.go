package app

import (
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// RoomIndex is the read side of the directory the relay needs.
type RoomIndex interface {
	RoomOf(conn domain.ConnID) (domain.RoomID, bool)
	Members(room domain.RoomID) []domain.ConnID
}

// Relay forwards frames to live connections. It keeps no state of its own
// and never blocks on delivery.
type Relay struct {
	Conns *Registry
	Rooms RoomIndex
}

func NewRelay(conns *Registry, rooms RoomIndex) *Relay {
	return &Relay{Conns: conns, Rooms: rooms}
}

// Relay delivers a negotiation message from one participant to another in
// the same room, stamping the sender. Misses are dropped.
func (r *Relay) Relay(from domain.ConnID, msg protocol.Message) (delivered bool, slow []domain.ConnID) {
	target := msg.Target
	roomID, ok := r.Rooms.RoomOf(from)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Msg("sender not in a room, dropped")
		return false, nil
	}
	if peerRoom, ok := r.Rooms.RoomOf(target); !ok || peerRoom != roomID || target == from {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Str("target", string(target)).
			Msg("target not reachable, dropped")
		return false, nil
	}
	out := protocol.Message{
		Type:         msg.Type,
		Sender:       from,
		MediaContext: msg.MediaContext,
		Payload:      msg.Payload,
	}
	err := r.Send(target, out)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrBackpressure):
		return false, []domain.ConnID{target}
	default:
		return false, nil
	}
}

// Send encodes msg and hands it to one connection.
func (r *Relay) Send(to domain.ConnID, msg protocol.Message) error {
	sig, ok := r.Conns.Signal(to)
	if !ok {
		return core.ErrConnClosed
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("type", string(msg.Type)).Msg("encode")
		return err
	}
	if err := sig.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("to", string(to)).Str("type", string(msg.Type)).
			Msg("send failed")
		return err
	}
	return nil
}

// Broadcast sends msg to every member of a room except exclude and
// returns the members whose buffers were full.
func (r *Relay) Broadcast(roomID domain.RoomID, msg protocol.Message, exclude domain.ConnID) []domain.ConnID {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("type", string(msg.Type)).Msg("encode")
		return nil
	}
	var slow []domain.ConnID
	for _, conn := range r.Rooms.Members(roomID) {
		if conn == exclude {
			continue
		}
		sig, ok := r.Conns.Signal(conn)
		if !ok {
			continue
		}
		if err := sig.TrySend(frame); errors.Is(err, core.ErrBackpressure) {
			slow = append(slow, conn)
		}
	}
	return slow
}

// Deliver fans out directory events in order.
func (r *Relay) Deliver(events []core.Event) []domain.ConnID {
	var slow []domain.ConnID
	for _, ev := range events {
		msg := EventMessage(ev)
		if ev.To != "" {
			if err := r.Send(ev.To, msg); errors.Is(err, core.ErrBackpressure) {
				slow = append(slow, ev.To)
			}
			continue
		}
		slow = append(slow, r.Broadcast(ev.RoomID, msg, ev.Exclude)...)
	}
	return slow
}

// EventMessage renders a directory event as its wire message.
func EventMessage(ev core.Event) protocol.Message {
	switch ev.Kind {
	case core.EventParticipantsUpdated:
		return protocol.Message{Type: protocol.TypeParticipantsUpdated, RoomID: ev.RoomID, Participants: ev.Participants}
	case core.EventParticipantJoined:
		return protocol.Message{
			Type:         protocol.TypeParticipantJoined,
			RoomID:       ev.RoomID,
			ConnectionID: ev.Subject.ConnID,
			Identity:     ev.Subject.Identity,
		}
	case core.EventParticipantLeft:
		return protocol.Message{
			Type:         protocol.TypeParticipantLeft,
			RoomID:       ev.RoomID,
			ConnectionID: ev.Subject.ConnID,
			Identity:     ev.Subject.Identity,
			Reason:       string(ev.Reason),
		}
	case core.EventHostChanged:
		return protocol.Message{Type: protocol.TypeHostChanged, RoomID: ev.RoomID, Host: ev.Host}
	case core.EventParticipantKicked:
		return protocol.Message{Type: protocol.TypeParticipantKicked, RoomID: ev.RoomID, Target: ev.To}
	case core.EventIdentityRebound:
		return protocol.Message{
			Type:            protocol.TypeIdentityRebound,
			RoomID:          ev.RoomID,
			OldConnectionID: ev.OldConn,
			ConnectionID:    ev.Subject.ConnID,
			Identity:        ev.Subject.Identity,
		}
	default:
		return protocol.Message{Type: protocol.Type(ev.Kind.String())}
	}
}
