package orch

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) CreateRoom(ctx context.Context, conn domain.ConnID, identity string) error {
	return o.Exec(ctx, func() {
		id, events, err := o.Rooms.CreateRoom(conn, identity)
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("create room failed")
			o.reply(conn, protocol.ErrorMessage(protocol.CodeOf(err), err.Error()))
			return
		}
		// events may start with the leave from a previous room.
		o.reply(conn, protocol.Message{
			Type:   protocol.TypeRoomCreated,
			RoomID: id,
			SelfID: conn,
			Host:   conn,
		})
		o.deliver(events)
	})
}

func (o *Orchestrator) Join(ctx context.Context, conn domain.ConnID, roomID domain.RoomID, identity string) error {
	return o.Exec(ctx, func() {
		res := o.Rooms.Admit(roomID, identity, conn)
		if !res.Accepted {
			log.Info().Err(res.Reason).Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).
				Msg("join rejected")
			o.reply(conn, protocol.Message{
				Type:   protocol.TypeJoinRejected,
				RoomID: roomID,
				Reason: protocol.CodeOf(res.Reason),
				Error:  res.Reason.Error(),
			})
			return
		}
		o.reply(conn, protocol.Message{
			Type:         protocol.TypeJoinAccepted,
			RoomID:       roomID,
			SelfID:       conn,
			Identity:     res.Self.Identity,
			Host:         res.Host,
			Rebound:      res.Rebound,
			Participants: res.Existing,
		})
		for _, ev := range res.Events {
			if ev.Kind == core.EventIdentityRebound && ev.OldConn != conn {
				// A still-open stale socket learns it no longer holds the seat.
				_ = o.Relay.Send(ev.OldConn, protocol.Message{Type: protocol.TypeLeft, RoomID: roomID, Reason: "rebound"})
			}
		}
		o.deliver(res.Events)
	})
}

// Leave is idempotent: a connection outside any room still gets left{}.
func (o *Orchestrator) Leave(ctx context.Context, conn domain.ConnID) error {
	return o.Exec(ctx, func() {
		roomID, _ := o.Rooms.RoomOf(conn)
		events := o.Rooms.Remove(conn, core.ReasonLeave)
		o.reply(conn, protocol.Message{Type: protocol.TypeLeft, RoomID: roomID})
		o.deliver(events)
	})
}

func (o *Orchestrator) Kick(ctx context.Context, requester, target domain.ConnID) error {
	return o.Exec(ctx, func() {
		events, err := o.Rooms.Kick(requester, target)
		if err != nil {
			o.reply(requester, protocol.ErrorMessage(protocol.CodeOf(err), err.Error()))
			return
		}
		log.Info().Str("module", "orch").Str("host", string(requester)).Str("target", string(target)).Msg("kicked")
		o.deliver(events)
	})
}

func (o *Orchestrator) RoomExists(ctx context.Context, conn domain.ConnID, roomID domain.RoomID) error {
	return o.Exec(ctx, func() {
		exists, full := o.Rooms.RoomExists(roomID)
		o.reply(conn, protocol.Message{
			Type:   protocol.TypeRoomExists,
			RoomID: roomID,
			Exists: protocol.Bool(exists),
			Full:   protocol.Bool(full),
		})
	})
}

func (o *Orchestrator) WhoAmI(ctx context.Context, conn domain.ConnID) error {
	return o.Exec(ctx, func() {
		msg := protocol.Message{Type: protocol.TypeWhoAmI, SelfID: conn}
		if roomID, p, err := o.Rooms.Lookup(conn); err == nil {
			msg.RoomID = roomID
			msg.Identity = p.Identity
		}
		o.reply(conn, msg)
	})
}

// Disconnect cleans up after a closed transport. With a grace period the
// seat is held so the same identity can rebind and keep its join order;
// removal then happens only if nobody rebound it in the meantime.
func (o *Orchestrator) Disconnect(ctx context.Context, conn domain.ConnID) error {
	o.Registry.Unbind(conn)
	if o.Grace <= 0 {
		return o.Exec(ctx, func() {
			o.deliver(o.Rooms.Remove(conn, core.ReasonDisconnect))
		})
	}
	var seated bool
	if err := o.Exec(ctx, func() { _, seated = o.Rooms.RoomOf(conn) }); err != nil || !seated {
		return err
	}
	log.Debug().Str("module", "orch").Str("conn", string(conn)).Dur("grace", o.Grace).Msg("holding seat")
	time.AfterFunc(o.Grace, func() {
		_ = o.Exec(context.Background(), func() {
			o.deliver(o.Rooms.Remove(conn, core.ReasonDisconnect))
		})
	})
	return nil
}

func (o *Orchestrator) reply(conn domain.ConnID, msg protocol.Message) {
	if err := o.Relay.Send(conn, msg); err != nil {
		o.handleSlow(slowIf(conn, err))
	}
}
