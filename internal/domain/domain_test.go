package domain_test

import (
	"strings"
	"testing"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoom_Validation(t *testing.T) {
	_, err := domain.NewRoom("   ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = domain.NewRoom(strings.Repeat("x", domain.MaxRoomNameRunes+1), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	room, err := domain.NewRoom("  General Chat! ", " lobby ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("General Chat!"), room.Name)
	assert.Equal(t, "lobby", room.Description)
	assert.Equal(t, "general-chat", room.Slug)
	assert.NotEmpty(t, room.ID)
	assert.False(t, room.CreatedAt.IsZero())
}

func TestRoom_WithMetaKeepsIdentity(t *testing.T) {
	room, err := domain.NewRoom("general", "")
	require.NoError(t, err)

	edited, err := room.WithMeta("Random", "off topic")
	require.NoError(t, err)
	assert.Equal(t, room.ID, edited.ID)
	assert.Equal(t, room.CreatedAt, edited.CreatedAt)
	assert.Equal(t, "random", edited.Slug)

	_, err = room.WithMeta("", "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewUser(t *testing.T) {
	_, err := domain.NewUser("")
	assert.ErrorIs(t, err, domain.ErrUsernameEmpty)

	_, err = domain.NewUser(strings.Repeat("a", domain.MaxUsernameLen+1))
	assert.ErrorIs(t, err, domain.ErrUsernameTooLong)

	u, err := domain.NewUser("alice")
	require.NoError(t, err)
	assert.Len(t, string(u.ID), 36)
}

func TestMessage_Empty(t *testing.T) {
	assert.True(t, domain.Message{Text: "  \n"}.Empty())
	assert.False(t, domain.Message{Text: "hi"}.Empty())
	assert.False(t, domain.Message{Audio: []byte{1}}.Empty())
}
