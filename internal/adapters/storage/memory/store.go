// Package memory keeps rooms and messages in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

var _ core.Store = (*Store)(nil)

type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
	msgs  map[domain.RoomID][]domain.Message
}

func New() *Store {
	return &Store{
		rooms: make(map[domain.RoomID]domain.Room),
		msgs:  make(map[domain.RoomID][]domain.Message),
	}
}

func (s *Store) ListRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *Store) UpdateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *Store) AppendMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[msg.RoomID] = append(s.msgs[msg.RoomID], msg)
	return nil
}

func (s *Store) LastSequence(_ context.Context, room domain.RoomID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.msgs[room]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Seq, nil
}

func (s *Store) RecentMessages(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.msgs[room]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]domain.Message(nil), entries...), nil
}

func (s *Store) Close() error { return nil }
