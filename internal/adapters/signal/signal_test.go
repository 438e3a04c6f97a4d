package signal_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/adapters/storage/memory"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv     *httptest.Server
	o       *orch.Orchestrator
	general domain.RoomID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	rooms := app.NewRoomManager(store, core.RoomOptions{TypingTTL: time.Minute})
	require.NoError(t, rooms.Load(context.Background(), []string{"general"}))
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Policy:   app.SimplePolicy{},
		Messages: store,
		Limiter:  app.NewRateLimiter(100, time.Minute),
	}
	rooms.SetDropHandler(o.OnDropped)

	ctx, cancel := context.WithCancel(context.Background())
	ctl := signal.NewSignalWSController(o, signal.Options{})
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		u, err := domain.NewUser(c.Query("name"))
		if err != nil {
			c.AbortWithStatus(400)
			return
		}
		c.Set(signal.ContextUserKey, u)
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		rooms.StopAll()
	})
	return &harness{srv: srv, o: o, general: rooms.List()[0].ID}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (h *harness) dial(t *testing.T, name string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(typ, reqID string, room domain.RoomID, payload any) {
	c.t.Helper()
	env := map[string]any{"type": typ, "request_id": reqID, "room": room}
	if payload != nil {
		env["payload"] = payload
	}
	require.NoError(c.t, c.conn.WriteJSON(env))
}

// await reads frames until one of the wanted type arrives.
func (c *client) await(typ string) core.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env core.Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env))
		if env.Type == typ {
			return env
		}
	}
}

func TestJoinSendAndPush(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	alice.send("room.join", "1", h.general, nil)
	ack := alice.await("room.join.ack")
	assert.Equal(t, "1", ack.RequestID)

	bob.send("room.join", "2", h.general, nil)
	var joined struct {
		Members []core.MemberDTO `json:"members"`
	}
	require.NoError(t, json.Unmarshal(bob.await("room.join.ack").Payload, &joined))
	assert.Len(t, joined.Members, 2)

	pushed := alice.await(core.EventMembersChanged)
	assert.Equal(t, h.general, pushed.Room)

	bob.send("message.send", "3", h.general, map[string]any{"text": "hi"})
	var sent core.MessagePayload
	require.NoError(t, json.Unmarshal(bob.await("message.send.ack").Payload, &sent))
	assert.Equal(t, int64(1), sent.Message.Seq)

	var got core.MessagePayload
	require.NoError(t, json.Unmarshal(alice.await(core.EventMessageNew).Payload, &got))
	assert.Equal(t, "hi", got.Message.Text)
	assert.Equal(t, "bob", got.Message.SenderName)
	assert.Equal(t, sent.Message.ID, got.Message.ID)
}

func TestAudioMessageRoundTrip(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	alice.send("room.join", "1", h.general, nil)
	alice.await("room.join.ack")

	audio := base64.StdEncoding.EncodeToString([]byte("OggS-data"))
	alice.send("message.send", "2", h.general, map[string]any{"audioBase64": audio})
	var sent core.MessagePayload
	require.NoError(t, json.Unmarshal(alice.await("message.send.ack").Payload, &sent))
	assert.Equal(t, audio, sent.Message.AudioBase64)
	assert.Equal(t, "audio/ogg", sent.Message.AudioMIME)
}

func TestErrorFrames(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")

	cases := []struct {
		typ     string
		room    domain.RoomID
		payload any
		code    string
	}{
		{"room.join", "missing", nil, signal.CodeRoomNotFound},
		{"message.send", h.general, map[string]any{"text": "hi"}, signal.CodeNotAMember},
		{"typing.start", h.general, nil, signal.CodeNotAMember},
		{"bogus", "", nil, signal.CodeValidation},
	}
	for i, tc := range cases {
		reqID := string(rune('a' + i))
		alice.send(tc.typ, reqID, tc.room, tc.payload)
		env := alice.await("error")
		assert.Equal(t, reqID, env.RequestID, tc.typ)
		var p signal.ErrorPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, tc.code, p.Code, tc.typ)
	}

	alice.send("room.join", "j", h.general, nil)
	alice.await("room.join.ack")
	alice.send("message.send", "e", h.general, map[string]any{"text": "  "})
	var p signal.ErrorPayload
	require.NoError(t, json.Unmarshal(alice.await("error").Payload, &p))
	assert.Equal(t, signal.CodeEmptyMessage, p.Code)

	alice.send("ping", "p", "", nil)
	assert.Equal(t, "p", alice.await("ping.ack").RequestID)
}

func TestWhoAmIAndRename(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")

	alice.send("rename", "1", "", map[string]any{"name": "alicia"})
	alice.await("rename.ack")

	alice.send("whoami", "2", "", nil)
	var who struct {
		User domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(alice.await("whoami.ack").Payload, &who))
	assert.Equal(t, "alicia", who.User.Username)
}

func TestAbruptDisconnectLeavesRooms(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	alice.send("room.join", "1", h.general, nil)
	alice.await("room.join.ack")
	bob.send("room.join", "2", h.general, nil)
	bob.await("room.join.ack")

	// no close frame
	require.NoError(t, alice.conn.UnderlyingConn().Close())

	bob.await(core.EventMembersChanged)
	assert.Eventually(t, func() bool {
		members, err := h.o.ListMembers(context.Background(), h.general)
		return err == nil && len(members) == 1 && members[0].Username == "bob"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestErrorCode(t *testing.T) {
	code, retry := signal.ErrorCode(domain.ErrRateLimited)
	assert.Equal(t, signal.CodeRateLimited, code)
	assert.True(t, retry)

	code, _ = signal.ErrorCode(domain.ErrForbidden)
	assert.Equal(t, signal.CodeForbidden, code)

	code, retry = signal.ErrorCode(assert.AnError)
	assert.Equal(t, signal.CodeInternal, code)
	assert.True(t, retry)
}
