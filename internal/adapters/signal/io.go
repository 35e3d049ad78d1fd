package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Limits.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(ctl.Limits.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Limits.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Limits.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		cancel()
		// The loop may already be stopped on shutdown; cleanup is best effort.
		_ = ctl.Orch.Disconnect(context.Background(), c.id)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Limits.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	})

	go func() {
		// Unblock ReadMessage when the connection is canceled from outside.
		<-ctx.Done()
		_ = c.conn.SetReadDeadline(time.Now())
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		if err := ctl.handleSignal(ctx, c, data); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump stop")
			return
		}
	}
}

// handleSignal decodes one frame and dispatches it. Only loop shutdown or
// cancellation is returned as an error; bad input is answered in-band.
func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("rejected frame")
		ctl.sendJSON(c, protocol.ErrorMessage(protocol.CodeOf(err), err.Error()))
		return nil
	}

	switch msg.Type {
	case protocol.TypeCreateRoom:
		return ctl.createRoom(ctx, c, msg)
	case protocol.TypeJoinRoom:
		return ctl.handleJoin(ctx, c, msg)
	case protocol.TypeLeaveRoom:
		return ctl.Orch.Leave(ctx, c.id)
	case protocol.TypeKick:
		return ctl.Orch.Kick(ctx, c.id, msg.Target)
	case protocol.TypeRoomExists:
		return ctl.Orch.RoomExists(ctx, c.id, msg.RoomID)
	case protocol.TypeWhoAmI:
		return ctl.Orch.WhoAmI(ctx, c.id)
	case protocol.TypePing:
		ctl.handlePing(c)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		return ctl.Orch.Negotiate(ctx, c.id, msg)
	default:
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Msg("unknown signal")
	}
	return nil
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil && !errors.Is(err, core.ErrConnClosed) {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("sendJSON")
	}
}
