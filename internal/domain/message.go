package domain

import (
	"strings"
	"time"
)

type MessageID string

// Message is immutable once the room assigned its sequence.
type Message struct {
	ID         MessageID `json:"id"`
	RoomID     RoomID    `json:"room_id"`
	Seq        int64     `json:"seq"`
	SenderID   UserID    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text,omitempty"`
	Audio      []byte    `json:"-"`
	AudioMIME  string    `json:"audio_mime,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Empty reports whether the message carries no content at all.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Audio) == 0
}

func (m Message) HasAudio() bool { return len(m.Audio) > 0 }
