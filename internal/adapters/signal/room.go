package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) createRoom(ctx context.Context, conn *WsSignalConn, msg protocol.Message) error {
	if !ctl.Limiter.Allow(conn.limitKey()) {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Str("client", conn.token).Msg("create-room rate limited")
		ctl.sendJSON(conn, protocol.ErrorMessage(protocol.CodeRateLimited, "too many attempts"))
		return nil
	}
	return ctl.Orch.CreateRoom(ctx, conn.id, msg.Identity)
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, conn *WsSignalConn, msg protocol.Message) error {
	if !ctl.Limiter.Allow(conn.limitKey()) {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Str("client", conn.token).Str("room", string(msg.RoomID)).
			Msg("join-room rate limited")
		ctl.sendJSON(conn, protocol.Message{
			Type:   protocol.TypeJoinRejected,
			RoomID: msg.RoomID,
			Reason: protocol.CodeRateLimited,
		})
		return nil
	}
	return ctl.Orch.Join(ctx, conn.id, msg.RoomID, msg.Identity)
}
