package signal

import (
	"context"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type joinAck struct {
	Room    domain.Room      `json:"room"`
	Members []core.MemberDTO `json:"members"`
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, c *WsSignalConn, env core.Envelope) {
	room, members, err := ctl.Orch.Join(ctx, sid, env.Room)
	if err != nil {
		ctl.sendError(c, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(env.Room)).Msg("join")
	ctl.ack(c, env, joinAck{Room: room, Members: members})
}

// handleLeave leaves one room; the connection stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, sid core.SessionID, c *WsSignalConn, env core.Envelope) {
	if err := ctl.Orch.Leave(ctx, sid, env.Room); err != nil {
		ctl.sendError(c, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(env.Room)).Msg("leave")
	ctl.ack(c, env, struct{}{})
}
