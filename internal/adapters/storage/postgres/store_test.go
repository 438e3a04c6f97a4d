package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dkeye/Chat/internal/adapters/storage/postgres"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.New(db), mock
}

func TestAppendMessage(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	msg := domain.Message{ID: "m1", RoomID: "r1", Seq: 7, SenderID: "u1", SenderName: "alice", Text: "hi", CreatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages`)).
		WithArgs(msg.ID, msg.RoomID, msg.Seq, msg.SenderID, msg.SenderName, msg.Text, sqlmock.AnyArg(), msg.AudioMIME, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AppendMessage(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessage_UniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := store.AppendMessage(context.Background(), domain.Message{ID: "m1", RoomID: "r1", Seq: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique_violation")
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
}

func TestLastSequence(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = $1`)).
		WithArgs(domain.RoomID("r1")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(12)))

	last, err := store.LastSequence(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentMessages(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "room_id", "seq", "sender_id", "sender_name", "body", "audio", "audio_mime", "created_at"}).
		AddRow("m1", "r1", int64(1), "u1", "alice", "hi", nil, "", now).
		AddRow("m2", "r1", int64(2), "u2", "bob", "", []byte("OggS"), "audio/ogg", now)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM (SELECT * FROM messages WHERE room_id = $1 ORDER BY seq DESC LIMIT $2) recent`)).
		WithArgs(domain.RoomID("r1"), 50).
		WillReturnRows(rows)

	got, err := store.RecentMessages(context.Background(), "r1", 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, []byte("OggS"), got[1].Audio)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRoom_NotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE rooms SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateRoom(context.Background(), domain.Room{ID: "nope", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestListRooms(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, description, slug, created_at FROM rooms`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "slug", "created_at"}).
			AddRow("r1", "general", "", "general", created))

	rooms, err := store.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomName("general"), rooms[0].Name)
	assert.Equal(t, created, rooms[0].CreatedAt)
}
