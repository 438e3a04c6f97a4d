package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join registers sid in the room and returns the deduplicated roster.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, roomID domain.RoomID) (domain.Room, []core.MemberDTO, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return domain.Room{}, nil, ErrUnknownSession
	}
	meta, err := o.Rooms.Lookup(roomID)
	if err != nil {
		return domain.Room{}, nil, err
	}
	if !o.canAccess(sess.Meta().User, meta) {
		return domain.Room{}, nil, domain.ErrForbidden
	}
	svc, err := o.Rooms.Get(roomID)
	if err != nil {
		return domain.Room{}, nil, err
	}
	// Record the room first so disconnect cleanup covers a join the actor
	// applied after ctx was cancelled.
	already := o.Registry.InRoom(sid, roomID)
	if !o.Registry.AddRoom(sid, roomID) {
		return domain.Room{}, nil, ErrUnknownSession
	}
	res, err := svc.Join(ctx, sid, sess)
	if err != nil {
		if !already {
			o.Registry.RemoveRoom(sid, roomID)
			_ = o.leaveRoom(context.WithoutCancel(ctx), sid, roomID)
		}
		return domain.Room{}, nil, err
	}
	if res.Joined {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
	}
	return svc.Room(), res.Members, nil
}

// Leave is a no-op when sid is not a member.
func (o *Orchestrator) Leave(ctx context.Context, sid core.SessionID, roomID domain.RoomID) error {
	if _, err := o.Rooms.Lookup(roomID); err != nil {
		return err
	}
	if err := o.leaveRoom(ctx, sid, roomID); err != nil {
		return err
	}
	o.Registry.RemoveRoom(sid, roomID)
	return nil
}

func (o *Orchestrator) leaveRoom(ctx context.Context, sid core.SessionID, roomID domain.RoomID) error {
	svc, ok := o.Rooms.Active(roomID)
	if !ok {
		return nil
	}
	left, err := svc.Leave(ctx, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("leave failed")
		return err
	}
	if left {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("removed from room")
	}
	return nil
}

func (o *Orchestrator) ListMembers(ctx context.Context, roomID domain.RoomID) ([]core.MemberDTO, error) {
	if _, err := o.Rooms.Lookup(roomID); err != nil {
		return nil, err
	}
	svc, ok := o.Rooms.Active(roomID)
	if !ok {
		return []core.MemberDTO{}, nil
	}
	return svc.Members(ctx)
}

// ListRooms returns rooms the user may join with live member counts.
func (o *Orchestrator) ListRooms(ctx context.Context, user *domain.User) ([]core.RoomInfo, error) {
	var joined map[domain.RoomID]struct{}
	if user != nil {
		joined = o.Registry.RoomsOfUser(user.ID)
	}
	rooms := o.Rooms.List()
	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		if !o.canAccess(user, r) {
			continue
		}
		info := core.RoomInfo{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Slug:        r.Slug,
			CreatedAt:   r.CreatedAt,
		}
		if svc, ok := o.Rooms.Active(r.ID); ok {
			members, err := svc.Members(ctx)
			if err != nil && !errors.Is(err, core.ErrRoomClosed) {
				return nil, err
			}
			info.MemberCount = len(members)
		}
		_, info.Joined = joined[r.ID]
		out = append(out, info)
	}
	return out, nil
}

func (o *Orchestrator) GetRoom(user *domain.User, roomID domain.RoomID) (domain.Room, error) {
	room, err := o.Rooms.Lookup(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if !o.canAccess(user, room) {
		return domain.Room{}, domain.ErrForbidden
	}
	return room, nil
}

func (o *Orchestrator) CreateRoom(ctx context.Context, name, description string) (domain.Room, error) {
	return o.Rooms.Create(ctx, name, description)
}

func (o *Orchestrator) UpdateRoom(ctx context.Context, user *domain.User, roomID domain.RoomID, name, description string) (domain.Room, error) {
	if _, err := o.GetRoom(user, roomID); err != nil {
		return domain.Room{}, err
	}
	return o.Rooms.Update(ctx, roomID, name, description)
}
