package orch

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Read-only views for the REST surface. They run on the loop like everything else.

func (o *Orchestrator) Exists(ctx context.Context, roomID domain.RoomID) (exists, full bool, err error) {
	err = o.Exec(ctx, func() { exists, full = o.Rooms.RoomExists(roomID) })
	return exists, full, err
}

func (o *Orchestrator) ListRooms(ctx context.Context) ([]core.RoomInfo, error) {
	var out []core.RoomInfo
	err := o.Exec(ctx, func() { out = o.Rooms.Rooms() })
	return out, err
}

func (o *Orchestrator) Participants(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantView, error) {
	var (
		out    []domain.ParticipantView
		qryErr error
	)
	if err := o.Exec(ctx, func() { out, qryErr = o.Rooms.Participants(roomID) }); err != nil {
		return nil, err
	}
	return out, qryErr
}

func (o *Orchestrator) AllParticipants(ctx context.Context) (map[domain.RoomID][]domain.ParticipantView, error) {
	var out map[domain.RoomID][]domain.ParticipantView
	err := o.Exec(ctx, func() { out = o.Rooms.Snapshot() })
	return out, err
}
