package core

import (
	"context"

	"github.com/dkeye/Chat/internal/domain"
)

// RoomStore persists room metadata.
type RoomStore interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	CreateRoom(ctx context.Context, room domain.Room) error
	UpdateRoom(ctx context.Context, room domain.Room) error
}

// MessageStore persists the per-room message log.
// RecentMessages returns the newest limit messages in ascending seq order.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg domain.Message) error
	LastSequence(ctx context.Context, room domain.RoomID) (int64, error)
	RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

type Store interface {
	RoomStore
	MessageStore
	Close() error
}
