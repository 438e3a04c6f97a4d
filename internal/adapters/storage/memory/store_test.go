package memory_test

import (
	"context"
	"testing"

	"github.com/dkeye/Chat/internal/adapters/storage/memory"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecentMessagesReturnsNewestAscending(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, domain.Message{RoomID: "r", Seq: i}))
	}

	got, err := s.RecentMessages(ctx, "r", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})

	last, err := s.LastSequence(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)

	last, err = s.LastSequence(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestStore_UpdateUnknownRoom(t *testing.T) {
	err := memory.New().UpdateRoom(context.Background(), domain.Room{ID: "nope"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
