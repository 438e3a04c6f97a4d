package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestRoomsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	room, err := domain.NewRoom("general", "lobby")
	require.NoError(t, err)
	require.NoError(t, store.CreateRoom(ctx, *room))

	edited, err := room.WithMeta("General", "main lobby")
	require.NoError(t, err)
	require.NoError(t, store.UpdateRoom(ctx, edited))

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, edited.Name, rooms[0].Name)
	assert.Equal(t, "main lobby", rooms[0].Description)
	assert.Equal(t, room.CreatedAt.UnixMilli(), rooms[0].CreatedAt.UnixMilli())

	err = store.UpdateRoom(ctx, domain.Room{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMessagesRecentAscending(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	room, err := domain.NewRoom("general", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateRoom(ctx, *room))

	last, err := store.LastSequence(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, last)

	for i := int64(1); i <= 4; i++ {
		msg := domain.Message{
			ID:         domain.MessageID(fmt.Sprintf("m%d", i)),
			RoomID:     room.ID,
			Seq:        i,
			SenderID:   "u1",
			SenderName: "alice",
			Text:       "hello",
		}
		if i == 4 {
			msg.Text = ""
			msg.Audio = []byte("OggS")
			msg.AudioMIME = "audio/ogg"
		}
		require.NoError(t, store.AppendMessage(ctx, msg))
	}

	got, err := store.RecentMessages(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, int64(4), got[1].Seq)
	assert.Equal(t, []byte("OggS"), got[1].Audio)

	last, err = store.LastSequence(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)
}

func TestAppendRejectsDuplicateSeq(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	room, err := domain.NewRoom("general", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateRoom(ctx, *room))

	require.NoError(t, store.AppendMessage(ctx, domain.Message{ID: "m1", RoomID: room.ID, Seq: 1, SenderID: "u", SenderName: "a"}))
	err = store.AppendMessage(ctx, domain.Message{ID: "m2", RoomID: room.ID, Seq: 1, SenderID: "u", SenderName: "a"})
	assert.Error(t, err)
}
