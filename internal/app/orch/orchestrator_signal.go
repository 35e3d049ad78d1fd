package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// Negotiate relays an offer, answer or candidate to its target.
func (o *Orchestrator) Negotiate(ctx context.Context, from domain.ConnID, msg protocol.Message) error {
	return o.Exec(ctx, func() {
		_, slow := o.Relay.Relay(from, msg)
		o.handleSlow(slow)
	})
}

func slowIf(conn domain.ConnID, err error) []domain.ConnID {
	if errors.Is(err, core.ErrBackpressure) {
		return []domain.ConnID{conn}
	}
	return nil
}
