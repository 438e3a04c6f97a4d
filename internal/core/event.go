package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

// Server push event types.
const (
	EventMembersChanged = "room.members.changed"
	EventMessageNew     = "message.new"
	EventTypingChanged  = "typing.changed"
)

// Envelope is the frame shape shared by requests, replies and pushes.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Room      domain.RoomID   `json:"room,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type MembersChangedPayload struct {
	Members []MemberDTO `json:"members"`
}

type TypingChangedPayload struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	Typing   bool          `json:"typing"`
}

type MessagePayload struct {
	Message MessageDTO `json:"message"`
}

// MessageDTO is the wire form of domain.Message; audio travels base64 encoded.
type MessageDTO struct {
	ID          domain.MessageID `json:"id"`
	RoomID      domain.RoomID    `json:"room_id"`
	Seq         int64            `json:"seq"`
	SenderID    domain.UserID    `json:"sender_id"`
	SenderName  string           `json:"sender_name"`
	Text        string           `json:"text,omitempty"`
	AudioBase64 string           `json:"audioBase64,omitempty"`
	AudioMIME   string           `json:"audio_mime,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func NewMessageDTO(m domain.Message) MessageDTO {
	dto := MessageDTO{
		ID:         m.ID,
		RoomID:     m.RoomID,
		Seq:        m.Seq,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		AudioMIME:  m.AudioMIME,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.Audio) > 0 {
		dto.AudioBase64 = base64.StdEncoding.EncodeToString(m.Audio)
	}
	return dto
}

func (d MessageDTO) ToDomain() (domain.Message, error) {
	m := domain.Message{
		ID:         d.ID,
		RoomID:     d.RoomID,
		Seq:        d.Seq,
		SenderID:   d.SenderID,
		SenderName: d.SenderName,
		Text:       d.Text,
		AudioMIME:  d.AudioMIME,
		CreatedAt:  d.CreatedAt,
	}
	if d.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(d.AudioBase64)
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: audio is not valid base64", domain.ErrValidation)
		}
		m.Audio = audio
	}
	return m, nil
}

// EncodeEvent marshals payload into an envelope frame.
func EncodeEvent(typ string, room domain.RoomID, requestID string, payload any) (Frame, error) {
	env := Envelope{Type: typ, RequestID: requestID, Room: room}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return b, nil
}
