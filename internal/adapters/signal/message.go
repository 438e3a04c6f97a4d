package signal

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type sendPayload struct {
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audioBase64,omitempty"`
	AudioMIME   string `json:"audio_mime,omitempty"`
}

func (ctl *SignalWSController) handleSend(ctx context.Context, sid core.SessionID, c *WsSignalConn, env core.Envelope) {
	var p sendPayload
	if !ctl.decode(c, env, &p) {
		return
	}
	req := orch.SendRequest{Text: p.Text, AudioMIME: p.AudioMIME}
	if p.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			ctl.sendError(c, env, fmt.Errorf("%w: audioBase64 is not valid base64", domain.ErrValidation))
			return
		}
		req.Audio = audio
	}
	msg, err := ctl.Orch.Send(ctx, sid, env.Room, req)
	if err != nil {
		ctl.sendError(c, env, err)
		return
	}
	ctl.ack(c, env, core.MessagePayload{Message: core.NewMessageDTO(msg)})
}
