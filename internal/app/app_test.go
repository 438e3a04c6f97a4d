package app_test

import (
	"context"
	"testing"

	"github.com/dkeye/Chat/internal/adapters/storage/memory"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

func TestRoomManager_CreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	m := app.NewRoomManager(memory.New(), core.RoomOptions{})
	t.Cleanup(m.StopAll)

	_, err := m.Create(ctx, "General", "")
	require.NoError(t, err)

	_, err = m.Create(ctx, "  general ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.Create(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRoomManager_LoadSeedsDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	first := app.NewRoomManager(store, core.RoomOptions{})
	require.NoError(t, first.Load(ctx, []string{"general", "random"}))
	assert.Len(t, first.List(), 2)

	second := app.NewRoomManager(store, core.RoomOptions{})
	require.NoError(t, second.Load(ctx, []string{"General"}))
	assert.Len(t, second.List(), 2)
}

func TestRoomManager_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	m := app.NewRoomManager(memory.New(), core.RoomOptions{})
	t.Cleanup(m.StopAll)

	a, err := m.Create(ctx, "alpha", "")
	require.NoError(t, err)
	_, err = m.Create(ctx, "beta", "")
	require.NoError(t, err)

	svc, err := m.Get(a.ID)
	require.NoError(t, err)

	_, err = m.Update(ctx, a.ID, "Beta", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	edited, err := m.Update(ctx, a.ID, "Alpha Room", "first")
	require.NoError(t, err)
	assert.Equal(t, "alpha-room", edited.Slug)
	assert.Equal(t, edited, svc.Room())

	again, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, svc, again)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = m.Update(ctx, "missing", "x", "")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRegistry_TracksJoinedRooms(t *testing.T) {
	reg := app.NewRegistry()
	u, err := domain.NewUser("alice")
	require.NoError(t, err)
	sess := core.NewMemberSession(domain.NewMember(u), nopSignal{})

	cancelled := false
	reg.BindSignal("s1", sess, func() { cancelled = true })
	assert.True(t, reg.AddRoom("s1", "r1"))
	assert.True(t, reg.AddRoom("s1", "r2"))
	assert.False(t, reg.AddRoom("ghost", "r1"))
	assert.True(t, reg.InRoom("s1", "r1"))

	reg.RemoveRoom("s1", "r1")
	assert.False(t, reg.InRoom("s1", "r1"))
	assert.Contains(t, reg.RoomsOfUser(u.ID), domain.RoomID("r2"))

	sid, ok := reg.SIDOf(sess)
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s1"), sid)

	assert.True(t, reg.Cancel("s1"))
	assert.True(t, cancelled)

	assert.Equal(t, []domain.RoomID{"r2"}, reg.Unbind("s1"))
	assert.Nil(t, reg.Unbind("s1"))
	assert.Zero(t, reg.Count())
}

func TestSimplePolicy(t *testing.T) {
	assert.Equal(t, app.DropFrame, app.SimplePolicy{}.OnBackPressure("r", nil))
	assert.Equal(t, app.KickMember, app.SimplePolicy{KickSlow: true}.OnBackPressure("r", nil))
	assert.True(t, app.SimplePolicy{}.CanAccess(nil, domain.Room{}))
}
