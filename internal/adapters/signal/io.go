package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const disconnectTimeout = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(ctl.opts.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump owns the session: when it returns, every room membership is released.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
		ctl.Orch.OnDisconnect(dctx, sid)
		dcancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump abrupt close")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, env, errBadPayload)
		return
	}

	switch env.Type {
	case "room.join":
		ctl.handleJoin(ctx, sid, c, env)
	case "room.leave":
		ctl.handleLeave(ctx, sid, c, env)
	case "message.send":
		ctl.handleSend(ctx, sid, c, env)
	case "typing.start":
		ctl.handleTyping(ctx, sid, c, env, true)
	case "typing.stop":
		ctl.handleTyping(ctx, sid, c, env, false)
	case "ping":
		ctl.handlePing(c, env)
	case "rename":
		ctl.handleRename(ctx, sid, c, env)
	case "whoami":
		ctl.handleWhoAmI(sid, c, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env, errUnknownType)
	}
}

// decode unmarshals the payload or answers with a VALIDATION error.
func (ctl *SignalWSController) decode(c *WsSignalConn, env core.Envelope, v any) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", env.Type).Msg("bad payload")
		ctl.sendError(c, env, errBadPayload)
		return false
	}
	return true
}

func (ctl *SignalWSController) ack(c *WsSignalConn, req core.Envelope, payload any) {
	ctl.send(c, req.Type+".ack", req, payload)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, req core.Envelope, err error) {
	code, retryable := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		log.Error().Err(err).Str("module", "signal").Str("type", req.Type).Msg("request failed")
		msg = "internal error"
	}
	ctl.send(c, "error", req, ErrorPayload{Code: code, Message: msg, Retryable: retryable})
}

func (ctl *SignalWSController) send(c *WsSignalConn, typ string, req core.Envelope, payload any) {
	frame, err := core.EncodeEvent(typ, req.Room, req.RequestID, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode reply")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", typ).Msg("reply dropped")
	}
}
