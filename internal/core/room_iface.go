package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

// ErrRoomClosed is returned once a room's actor has stopped.
var ErrRoomClosed = errors.New("room closed")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
// One entry per user even when the user has several sessions in the room.
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	JoinedAt time.Time     `json:"joined_at"`
}

// JoinResult is the membership snapshot taken at join time.
// Joined is false when the session was already a member.
type JoinResult struct {
	Members []MemberDTO
	Joined  bool
}

// DropHandler is told about recipients whose queue was full.
// It runs on the room goroutine and must not call back into the room.
type DropHandler func(room domain.RoomID, dropped MemberSession)

// RoomService is the core-facing API of a room.
// All membership, sequencing and typing state is owned by one goroutine per room;
// it never touches transport resources beyond TrySend.
type RoomService interface {
	Room() domain.Room
	SetRoom(domain.Room)

	Join(ctx context.Context, sid SessionID, ms MemberSession) (JoinResult, error)
	Leave(ctx context.Context, sid SessionID) (bool, error)
	Members(ctx context.Context) ([]MemberDTO, error)

	// Send assigns the next sequence, persists and fans out. The sender's own
	// session is skipped; it receives the stored message as the return value.
	Send(ctx context.Context, sid SessionID, draft domain.Message) (domain.Message, error)

	// UpdateMember swaps the session's member view, e.g. after a rename.
	UpdateMember(ctx context.Context, sid SessionID, ms MemberSession) (bool, error)

	StartTyping(ctx context.Context, sid SessionID) error
	StopTyping(ctx context.Context, sid SessionID) error

	Stop()
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	Description string          `json:"description,omitempty"`
	Slug        string          `json:"slug,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	MemberCount int             `json:"member_count"`
	Joined      bool            `json:"joined"`
}

// RoomManager owns room metadata and the lifetime of room actors.
type RoomManager interface {
	Get(id domain.RoomID) (RoomService, error)
	Lookup(id domain.RoomID) (domain.Room, error)
	Active(id domain.RoomID) (RoomService, bool)
	List() []domain.Room
	Create(ctx context.Context, name, description string) (domain.Room, error)
	Update(ctx context.Context, id domain.RoomID, name, description string) (domain.Room, error)
	StopAll()
}
