package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait         = 10 * time.Second
	subscriptionQueue = 256
)

// Event is one server push for a room.
type Event struct {
	Type    string
	Room    domain.RoomID
	Message *domain.Message
	Members []core.MemberDTO
	Typing  *core.TypingChangedPayload
}

// RequestError is an error frame returned by the hub.
type RequestError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps wire codes back onto the domain taxonomy so callers can use errors.Is.
func (e *RequestError) Unwrap() error {
	switch e.Code {
	case "ROOM_NOT_FOUND":
		return domain.ErrRoomNotFound
	case "NOT_A_MEMBER":
		return domain.ErrNotAMember
	case "EMPTY_MESSAGE":
		return domain.ErrEmptyMessage
	case "VALIDATION":
		return domain.ErrValidation
	case "FORBIDDEN":
		return domain.ErrForbidden
	case "RATE_LIMITED":
		return domain.ErrRateLimited
	}
	return nil
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Transport is one live WebSocket link to the hub.
type Transport struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan core.Envelope
	subs    map[domain.RoomID]map[*Subscription]struct{}
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the WebSocket at url. header carries cookies or tokens for identity.
func Dial(ctx context.Context, url string, header http.Header, logger zerolog.Logger) (*Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrTransportDisconnected, url, err)
	}
	t := &Transport{
		conn:    conn,
		log:     logger.With().Str("module", "client.transport").Logger(),
		pending: make(map[string]chan core.Envelope),
		subs:    make(map[domain.RoomID]map[*Subscription]struct{}),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Done is closed once the link is gone.
func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) Close() error {
	t.shutdown()
	return nil
}

func (t *Transport) shutdown() {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		_ = t.conn.Close()

		t.mu.Lock()
		t.closed = true
		for id, ch := range t.pending {
			close(ch)
			delete(t.pending, id)
		}
		for _, set := range t.subs {
			for s := range set {
				s.closeLocked()
			}
		}
		t.subs = make(map[domain.RoomID]map[*Subscription]struct{})
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *Transport) readLoop() {
	defer t.shutdown()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn().Err(err).Msg("connection lost")
			}
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn().Err(err).Msg("bad frame")
			continue
		}
		if env.RequestID != "" {
			t.resolve(env)
			continue
		}
		ev, err := decodeEvent(env)
		if err != nil {
			t.log.Warn().Err(err).Str("type", env.Type).Msg("bad push")
			continue
		}
		t.dispatch(ev)
	}
}

func (t *Transport) resolve(env core.Envelope) {
	t.mu.Lock()
	ch, ok := t.pending[env.RequestID]
	delete(t.pending, env.RequestID)
	t.mu.Unlock()
	if !ok {
		t.log.Debug().Str("request_id", env.RequestID).Msg("late reply")
		return
	}
	ch <- env
}

func (t *Transport) dispatch(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs[ev.Room] {
		select {
		case s.ch <- ev:
		default:
			t.log.Warn().Str("room", string(ev.Room)).Str("type", ev.Type).Msg("subscriber slow, event dropped")
		}
	}
}

func decodeEvent(env core.Envelope) (Event, error) {
	ev := Event{Type: env.Type, Room: env.Room}
	switch env.Type {
	case core.EventMessageNew:
		var p core.MessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, err
		}
		m, err := p.Message.ToDomain()
		if err != nil {
			return ev, err
		}
		ev.Message = &m
	case core.EventMembersChanged:
		var p core.MembersChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, err
		}
		ev.Members = p.Members
	case core.EventTypingChanged:
		var p core.TypingChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, err
		}
		ev.Typing = &p
	}
	return ev, nil
}

// Request sends one frame and waits for its ack. out may be nil.
func (t *Transport) Request(ctx context.Context, typ string, room domain.RoomID, payload, out any) error {
	reqID := uuid.NewString()
	frame, err := core.EncodeEvent(typ, room, reqID, payload)
	if err != nil {
		return err
	}

	reply := make(chan core.Envelope, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrTransportDisconnected
	}
	t.pending[reqID] = reply
	t.mu.Unlock()

	if err := t.write(frame); err != nil {
		t.forget(reqID)
		t.shutdown()
		return fmt.Errorf("%w: %v", domain.ErrTransportDisconnected, err)
	}

	select {
	case <-ctx.Done():
		t.forget(reqID)
		return ctx.Err()
	case env, ok := <-reply:
		if !ok {
			return domain.ErrTransportDisconnected
		}
		if env.Type == "error" {
			var p errorPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return fmt.Errorf("decode error frame: %w", err)
			}
			return &RequestError{Code: p.Code, Message: p.Message, Retryable: p.Retryable}
		}
		if out != nil && len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, out); err != nil {
				return fmt.Errorf("decode %s: %w", env.Type, err)
			}
		}
		return nil
	}
}

func (t *Transport) forget(reqID string) {
	t.mu.Lock()
	delete(t.pending, reqID)
	t.mu.Unlock()
}

func (t *Transport) write(frame core.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

type joinReply struct {
	Members []core.MemberDTO `json:"members"`
}

func (t *Transport) Join(ctx context.Context, room domain.RoomID) ([]core.MemberDTO, error) {
	var r joinReply
	if err := t.Request(ctx, "room.join", room, struct{}{}, &r); err != nil {
		return nil, err
	}
	return r.Members, nil
}

func (t *Transport) Leave(ctx context.Context, room domain.RoomID) error {
	return t.Request(ctx, "room.leave", room, struct{}{}, nil)
}

// OutgoingMessage is what the client asks the hub to store.
type OutgoingMessage struct {
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audioBase64,omitempty"`
	AudioMIME   string `json:"audio_mime,omitempty"`
}

// Send returns the message as stored by the hub, with its sequence assigned.
func (t *Transport) Send(ctx context.Context, room domain.RoomID, msg OutgoingMessage) (domain.Message, error) {
	var r core.MessagePayload
	if err := t.Request(ctx, "message.send", room, msg, &r); err != nil {
		return domain.Message{}, err
	}
	return r.Message.ToDomain()
}

func (t *Transport) StartTyping(ctx context.Context, room domain.RoomID) error {
	return t.Request(ctx, "typing.start", room, struct{}{}, nil)
}

func (t *Transport) StopTyping(ctx context.Context, room domain.RoomID) error {
	return t.Request(ctx, "typing.stop", room, struct{}{}, nil)
}

// Subscribe starts delivering pushes for room. Subscribe before joining so
// no push between the join ack and the subscription is lost.
func (t *Transport) Subscribe(room domain.RoomID) *Subscription {
	s := &Subscription{room: room, ch: make(chan Event, subscriptionQueue), t: t}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		s.closeLocked()
		return s
	}
	set, ok := t.subs[room]
	if !ok {
		set = make(map[*Subscription]struct{})
		t.subs[room] = set
	}
	set[s] = struct{}{}
	return s
}

// Subscription is a typed event stream for one room.
type Subscription struct {
	room   domain.RoomID
	ch     chan Event
	t      *Transport
	closed bool
}

func (s *Subscription) Room() domain.RoomID { return s.room }

// Events is closed after Cancel or when the transport goes away.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Cancel() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if set, ok := s.t.subs[s.room]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.t.subs, s.room)
		}
	}
	s.closeLocked()
}

// closeLocked requires t.mu.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
