package client_test

import (
	"fmt"
	"testing"

	"github.com/dkeye/Chat/internal/client"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(room domain.RoomID, seq int64, text string) domain.Message {
	return domain.Message{
		ID:     domain.MessageID(fmt.Sprintf("%s-%d", room, seq)),
		RoomID: room,
		Seq:    seq,
		Text:   text,
	}
}

func seqs(ms []domain.Message) []int64 {
	out := make([]int64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Seq)
	}
	return out
}

func TestReconciler_BuffersLiveUntilHistory(t *testing.T) {
	r := client.NewReconciler()
	token := r.Select("general")
	assert.Equal(t, client.PhaseLoading, r.Phase())

	// live messages racing the history fetch, one of them also in history
	r.OnMessage(msg("general", 101, "late"))
	r.OnMessage(msg("general", 100, "overlap"))
	r.OnMessage(msg("general", 102, "later"))
	assert.Empty(t, r.View().Messages)

	history := make([]domain.Message, 0, 100)
	for i := int64(1); i <= 100; i++ {
		history = append(history, msg("general", i, "h"))
	}
	require.True(t, r.ApplyHistory(token, history))

	v := r.View()
	assert.Equal(t, client.PhaseLive, v.Phase)
	require.Len(t, v.Messages, 102)
	assert.IsNonDecreasing(t, seqs(v.Messages))
	assert.Equal(t, "later", v.Messages[101].Text)
}

func TestReconciler_DedupesLiveAfterHistory(t *testing.T) {
	r := client.NewReconciler()
	token := r.Select("general")
	require.True(t, r.ApplyHistory(token, []domain.Message{msg("general", 1, "a"), msg("general", 2, "b")}))

	hi := msg("general", 3, "hi")
	r.OnMessage(hi)
	r.OnMessage(hi)
	r.OnMessage(msg("general", 2, "b"))

	v := r.View()
	require.Len(t, v.Messages, 3)
	assert.Equal(t, "hi", v.Messages[2].Text)
}

func TestReconciler_OutOfOrderInsert(t *testing.T) {
	r := client.NewReconciler()
	token := r.Select("general")
	require.True(t, r.ApplyHistory(token, nil))

	r.OnMessage(msg("general", 5, ""))
	r.OnMessage(msg("general", 3, ""))
	r.OnMessage(msg("general", 4, ""))
	assert.Equal(t, []int64{3, 4, 5}, seqs(r.View().Messages))
}

func TestReconciler_IgnoresOtherRoomsAndStaleHistory(t *testing.T) {
	r := client.NewReconciler()
	stale := r.Select("general")
	fresh := r.Select("random")

	assert.False(t, r.ApplyHistory(stale, []domain.Message{msg("general", 1, "x")}))
	r.OnMessage(msg("general", 2, "wrong room"))
	require.True(t, r.ApplyHistory(fresh, []domain.Message{msg("random", 1, "ok")}))

	v := r.View()
	assert.Equal(t, domain.RoomID("random"), v.Room)
	require.Len(t, v.Messages, 1)
	assert.Equal(t, "ok", v.Messages[0].Text)
}

func TestReconciler_DeselectDiscards(t *testing.T) {
	r := client.NewReconciler()
	token := r.Select("general")
	r.OnMessage(msg("general", 1, "buffered"))
	r.Deselect()

	assert.False(t, r.ApplyHistory(token, nil))
	v := r.View()
	assert.Equal(t, client.PhaseIdle, v.Phase)
	assert.Empty(t, v.Messages)
	assert.Empty(t, v.Room)

	r.OnMessage(msg("general", 2, "after"))
	assert.Empty(t, r.View().Messages)
}

func TestReconciler_ResyncMergesMissedMessages(t *testing.T) {
	r := client.NewReconciler()
	token := r.Select("general")
	require.True(t, r.ApplyHistory(token, []domain.Message{msg("general", 1, "a"), msg("general", 2, "b")}))

	token = r.Resync()
	assert.Len(t, r.View().Messages, 2)
	require.True(t, r.ApplyHistory(token, []domain.Message{msg("general", 2, "b"), msg("general", 3, "missed")}))
	assert.Equal(t, []int64{1, 2, 3}, seqs(r.View().Messages))
}

func TestReconciler_EphemeralStateLeavesMessagesAlone(t *testing.T) {
	r := client.NewReconciler()
	token := r.Select("general")
	require.True(t, r.ApplyHistory(token, []domain.Message{msg("general", 1, "a")}))

	r.SeedMembers(token, []core.MemberDTO{{ID: "u1", Username: "alice"}})
	r.OnMembers("general", []core.MemberDTO{{ID: "u1", Username: "alice"}, {ID: "u2", Username: "bob"}})
	r.SeedMembers(token, []core.MemberDTO{{ID: "u1", Username: "alice"}})
	r.OnTyping("general", core.TypingChangedPayload{UserID: "u2", Username: "bob", Typing: true})

	v := r.View()
	assert.Len(t, v.Members, 2)
	assert.Equal(t, map[domain.UserID]string{"u2": "bob"}, v.Typing)
	assert.Len(t, v.Messages, 1)

	r.OnTyping("general", core.TypingChangedPayload{UserID: "u2", Typing: false})
	assert.Empty(t, r.View().Typing)
	assert.Len(t, r.View().Messages, 1)
}
