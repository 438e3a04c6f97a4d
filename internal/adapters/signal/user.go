package signal

import (
	"context"
	"sort"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type renamePayload struct {
	Name string `json:"name"`
}

type whoAmIAck struct {
	User  domain.User     `json:"user"`
	Rooms []domain.RoomID `json:"rooms"`
}

func (ctl *SignalWSController) handleRename(ctx context.Context, sid core.SessionID, c *WsSignalConn, env core.Envelope) {
	var p renamePayload
	if !ctl.decode(c, env, &p) {
		return
	}
	user, err := ctl.Orch.Rename(ctx, sid, p.Name)
	if err != nil {
		ctl.sendError(c, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", user.Username).Msg("rename")
	ctl.ack(c, env, struct {
		User domain.User `json:"user"`
	}{User: *user})
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, c *WsSignalConn, env core.Envelope) {
	user, ok := ctl.Orch.WhoAmI(sid)
	if !ok {
		ctl.sendError(c, env, orch.ErrUnknownSession)
		return
	}
	rooms := ctl.Orch.Registry.RoomsOf(sid)
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	ctl.ack(c, env, whoAmIAck{User: *user, Rooms: rooms})
}

func (ctl *SignalWSController) handlePing(c *WsSignalConn, env core.Envelope) {
	ctl.ack(c, env, struct{}{})
}
