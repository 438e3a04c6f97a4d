package orch

import (
	"context"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

func (o *Orchestrator) StartTyping(ctx context.Context, sid core.SessionID, roomID domain.RoomID) error {
	svc, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return svc.StartTyping(ctx, sid)
}

func (o *Orchestrator) StopTyping(ctx context.Context, sid core.SessionID, roomID domain.RoomID) error {
	svc, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return svc.StopTyping(ctx, sid)
}

func (o *Orchestrator) memberRoom(sid core.SessionID, roomID domain.RoomID) (core.RoomService, error) {
	if _, err := o.Rooms.Lookup(roomID); err != nil {
		return nil, err
	}
	if !o.Registry.InRoom(sid, roomID) {
		return nil, domain.ErrNotAMember
	}
	return o.Rooms.Get(roomID)
}
