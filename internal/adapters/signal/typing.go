package signal

import (
	"context"

	"github.com/dkeye/Chat/internal/core"
)

func (ctl *SignalWSController) handleTyping(ctx context.Context, sid core.SessionID, c *WsSignalConn, env core.Envelope, typing bool) {
	var err error
	if typing {
		err = ctl.Orch.StartTyping(ctx, sid, env.Room)
	} else {
		err = ctl.Orch.StopTyping(ctx, sid, env.Room)
	}
	if err != nil {
		ctl.sendError(c, env, err)
		return
	}
	ctl.ack(c, env, struct{}{})
}
