package orch

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

const DefaultAudioMIME = "audio/ogg"

type SendRequest struct {
	Text      string
	Audio     []byte
	AudioMIME string
}

// Send returns once the message is persisted; other members get it as message.new.
func (o *Orchestrator) Send(ctx context.Context, sid core.SessionID, roomID domain.RoomID, req SendRequest) (domain.Message, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return domain.Message{}, ErrUnknownSession
	}
	if !o.Registry.InRoom(sid, roomID) {
		return domain.Message{}, domain.ErrNotAMember
	}
	draft := domain.Message{Text: req.Text, Audio: req.Audio, AudioMIME: req.AudioMIME}
	if draft.Empty() {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	lim := o.limits()
	if utf8.RuneCountInString(draft.Text) > lim.MaxTextRunes {
		return domain.Message{}, fmt.Errorf("%w: text exceeds %d characters", domain.ErrValidation, lim.MaxTextRunes)
	}
	if len(draft.Audio) > lim.MaxAudioBytes {
		return domain.Message{}, fmt.Errorf("%w: audio exceeds %d bytes", domain.ErrValidation, lim.MaxAudioBytes)
	}
	if draft.HasAudio() && draft.AudioMIME == "" {
		draft.AudioMIME = DefaultAudioMIME
	}
	if !o.Limiter.Allow(sess.Meta().User.ID) {
		return domain.Message{}, domain.ErrRateLimited
	}

	svc, err := o.Rooms.Get(roomID)
	if err != nil {
		return domain.Message{}, err
	}
	return svc.Send(ctx, sid, draft)
}

// History returns the newest messages in ascending sequence order. Membership is not required.
func (o *Orchestrator) History(ctx context.Context, user *domain.User, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	if _, err := o.GetRoom(user, roomID); err != nil {
		return nil, err
	}
	lim := o.limits()
	switch {
	case limit <= 0:
		limit = lim.HistoryDefault
	case limit > lim.HistoryMax:
		limit = lim.HistoryMax
	}
	msgs, err := o.Messages.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return msgs, nil
}
