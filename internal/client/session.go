package client

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/client/capture"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrSessionClosed = errors.New("client session closed")
	ErrNoMicrophone  = errors.New("no microphone configured")
)

const (
	DefaultHistoryLimit   = 100
	defaultMinBackoff     = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// DialFunc opens a fresh transport; Session calls it again after every disconnect.
type DialFunc func(ctx context.Context) (*Transport, error)

// WebSocketDialer dials url with header on every attempt.
func WebSocketDialer(url string, header http.Header, logger zerolog.Logger) DialFunc {
	return func(ctx context.Context) (*Transport, error) {
		return Dial(ctx, url, header, logger)
	}
}

type Config struct {
	Dial           DialFunc
	History        HistoryFetcher
	HistoryLimit   int
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	// Microphone enables BeginRecording/EndRecording when set.
	Microphone capture.Microphone
	Logger     zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = defaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = defaultMaxBackoff
		if c.MaxBackoff < c.MinBackoff {
			c.MaxBackoff = c.MinBackoff
		}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// View is what a UI renders. Connected=false disables send and record.
type View struct {
	RoomView
	Connected bool
	Recording bool
	Notice    string
}

// Session drives one client: every state change happens on the goroutine
// running Run, network round trips happen elsewhere and post their results back.
type Session struct {
	cfg     Config
	log     zerolog.Logger
	cmds    chan func(context.Context)
	updates chan View
	stopped chan struct{}
	capture *capture.Pipeline

	// owned by Run
	transport *Transport
	sub       *Subscription
	rec       *Reconciler
	notice    string
	backoff   time.Duration
	// closed once the previous join/leave request has been answered
	lastOp <-chan struct{}
}

func NewSession(cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("module", "client").Logger(),
		cmds:    make(chan func(context.Context)),
		updates: make(chan View, 1),
		stopped: make(chan struct{}),
		rec:     NewReconciler(),
		backoff: cfg.MinBackoff,
	}
	if cfg.Microphone != nil {
		s.capture = capture.NewPipeline(cfg.Microphone, cfg.Logger)
	}
	return s
}

// Updates yields the latest view after every change; stale views are replaced.
func (s *Session) Updates() <-chan View { return s.updates }

// Run owns the session until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()
	s.dial(ctx)
	s.publish()
	for {
		var events <-chan Event
		if s.sub != nil {
			events = s.sub.Events()
		}
		var lost <-chan struct{}
		if s.transport != nil {
			lost = s.transport.Done()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.cmds:
			fn(ctx)
		case ev, ok := <-events:
			if !ok {
				s.sub = nil
				continue
			}
			s.apply(ev)
		case <-lost:
			s.disconnected(ctx)
		}
	}
}

func (s *Session) teardown() {
	close(s.stopped)
	if s.capture != nil && s.capture.Active() {
		if _, err := s.capture.End(); err != nil {
			s.log.Warn().Err(err).Msg("discard capture")
		}
	}
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.log.Info().Msg("session stopped")
}

// post hands fn to the loop.
func (s *Session) post(ctx context.Context, fn func(context.Context)) error {
	select {
	case s.cmds <- fn:
		return nil
	case <-s.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query runs fn on the loop and waits for its answer.
func query[T any](ctx context.Context, s *Session, fn func() T) (T, error) {
	reply := make(chan T, 1)
	var zero T
	if err := s.post(ctx, func(context.Context) { reply <- fn() }); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.stopped:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Session) dial(ctx context.Context) {
	go func() {
		t, err := s.cfg.Dial(ctx)
		if perr := s.post(ctx, func(ctx context.Context) { s.dialed(ctx, t, err) }); perr != nil && t != nil {
			_ = t.Close()
		}
	}()
}

func (s *Session) dialed(ctx context.Context, t *Transport, err error) {
	if err != nil {
		s.log.Warn().Err(err).Dur("retry_in", s.backoff).Msg("dial failed")
		s.redial(ctx)
		return
	}
	s.transport = t
	s.backoff = s.cfg.MinBackoff
	s.notice = ""
	s.log.Info().Msg("connected")
	if room := s.rec.Room(); room != "" {
		s.enter(ctx, room, s.rec.Resync())
	}
	s.publish()
}

func (s *Session) disconnected(ctx context.Context) {
	s.log.Warn().Msg("transport lost")
	s.transport = nil
	s.lastOp = nil
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.publish()
	s.redial(ctx)
}

func (s *Session) redial(ctx context.Context) {
	delay := s.backoff
	s.backoff = min(s.backoff*2, s.cfg.MaxBackoff)
	time.AfterFunc(delay, func() {
		_ = s.post(ctx, func(ctx context.Context) { s.dial(ctx) })
	})
}

// roomOp runs fn after the previous join or leave has been answered, so the
// server sees membership requests in the order the user made them. fn calls
// release once its own request is answered; release also runs when fn returns.
func (s *Session) roomOp(fn func(release func())) {
	prev := s.lastOp
	done := make(chan struct{})
	s.lastOp = done
	var once sync.Once
	release := func() { once.Do(func() { close(done) }) }
	go func() {
		defer release()
		if prev != nil {
			<-prev
		}
		fn(release)
	}()
}

// enter subscribes, joins, then loads history. Live messages arriving before
// history lands are buffered by the reconciler.
func (s *Session) enter(ctx context.Context, room domain.RoomID, token uint64) {
	if s.sub != nil {
		s.sub.Cancel()
	}
	s.sub = s.transport.Subscribe(room)
	t := s.transport
	s.roomOp(func(release func()) {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		members, err := t.Join(rctx, room)
		release()
		if err != nil {
			_ = s.post(ctx, func(context.Context) {
				s.log.Warn().Err(err).Str("room", string(room)).Msg("join failed")
				s.rec.HistoryFailed(token)
				s.setNotice("join failed: " + err.Error())
			})
			return
		}
		_ = s.post(ctx, func(context.Context) {
			s.rec.SeedMembers(token, members)
			s.publish()
		})

		history, err := s.cfg.History.Fetch(rctx, room, s.cfg.HistoryLimit)
		_ = s.post(ctx, func(context.Context) {
			if err != nil {
				s.log.Warn().Err(err).Str("room", string(room)).Msg("history failed")
				s.rec.HistoryFailed(token)
				s.setNotice("history unavailable: " + err.Error())
				return
			}
			if s.rec.ApplyHistory(token, history) {
				s.log.Debug().Str("room", string(room)).Int("messages", len(history)).Msg("history applied")
			}
			s.publish()
		})
	})
}

func (s *Session) leave(ctx context.Context, room domain.RoomID) {
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	if s.transport == nil {
		return
	}
	t := s.transport
	s.roomOp(func(func()) {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
		if err := t.Leave(rctx, room); err != nil {
			s.log.Warn().Err(err).Str("room", string(room)).Msg("leave failed")
		}
	})
}

func (s *Session) apply(ev Event) {
	switch ev.Type {
	case core.EventMessageNew:
		s.rec.OnMessage(*ev.Message)
	case core.EventMembersChanged:
		s.rec.OnMembers(ev.Room, ev.Members)
	case core.EventTypingChanged:
		s.rec.OnTyping(ev.Room, *ev.Typing)
	default:
		return
	}
	s.publish()
}

func (s *Session) setNotice(msg string) {
	s.notice = msg
	s.publish()
}

func (s *Session) view() View {
	return View{
		RoomView:  s.rec.View(),
		Connected: s.transport != nil,
		Recording: s.capture != nil && s.capture.Active(),
		Notice:    s.notice,
	}
}

func (s *Session) publish() {
	v := s.view()
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
}

// View returns the current view.
func (s *Session) View(ctx context.Context) (View, error) {
	return query(ctx, s, s.view)
}

// Select switches the session to room, leaving the previous one.
func (s *Session) Select(ctx context.Context, room domain.RoomID) error {
	if room == "" {
		return s.Deselect(ctx)
	}
	return s.post(ctx, func(ctx context.Context) {
		if s.rec.Room() == room {
			return
		}
		if prev := s.rec.Room(); prev != "" {
			s.leave(ctx, prev)
		}
		token := s.rec.Select(room)
		if s.transport != nil {
			s.enter(ctx, room, token)
		}
		s.publish()
	})
}

func (s *Session) Deselect(ctx context.Context) error {
	return s.post(ctx, func(ctx context.Context) {
		prev := s.rec.Room()
		if prev == "" {
			return
		}
		s.leave(ctx, prev)
		s.rec.Deselect()
		s.publish()
	})
}

type sendTarget struct {
	t    *Transport
	room domain.RoomID
	err  error
}

func (s *Session) target(ctx context.Context) (*Transport, domain.RoomID, error) {
	tg, err := query(ctx, s, func() sendTarget {
		switch {
		case s.transport == nil:
			return sendTarget{err: domain.ErrTransportDisconnected}
		case s.rec.Room() == "":
			return sendTarget{err: domain.ErrNotAMember}
		}
		return sendTarget{t: s.transport, room: s.rec.Room()}
	})
	if err != nil {
		return nil, "", err
	}
	return tg.t, tg.room, tg.err
}

// Send posts a text message to the selected room.
func (s *Session) Send(ctx context.Context, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	return s.send(ctx, OutgoingMessage{Text: text})
}

// SendRecording posts a finished capture. An empty recording is never sent.
func (s *Session) SendRecording(ctx context.Context, audio []byte, mime string) (domain.Message, error) {
	if len(audio) == 0 {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	return s.send(ctx, OutgoingMessage{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		AudioMIME:   mime,
	})
}

func (s *Session) send(ctx context.Context, out OutgoingMessage) (domain.Message, error) {
	t, room, err := s.target(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := t.Send(ctx, room, out)
	if err != nil {
		_ = s.post(ctx, func(context.Context) { s.setNotice("send failed: " + err.Error()) })
		return domain.Message{}, err
	}
	// The hub acks our own message instead of pushing it back to this connection.
	_ = s.post(ctx, func(context.Context) {
		s.rec.OnMessage(msg)
		s.notice = ""
		s.publish()
	})
	return msg, nil
}

func (s *Session) StartTyping(ctx context.Context) error {
	t, room, err := s.target(ctx)
	if err != nil {
		return err
	}
	return t.StartTyping(ctx, room)
}

func (s *Session) StopTyping(ctx context.Context) error {
	t, room, err := s.target(ctx)
	if err != nil {
		return err
	}
	return t.StopTyping(ctx, room)
}

// BeginRecording opens the microphone. It needs a live connection and a
// selected room, like any other send.
func (s *Session) BeginRecording(ctx context.Context) error {
	if s.capture == nil {
		return ErrNoMicrophone
	}
	if _, _, err := s.target(ctx); err != nil {
		return err
	}
	if err := s.capture.Begin(ctx); err != nil {
		_ = s.post(ctx, func(context.Context) { s.setNotice("record failed: " + err.Error()) })
		return err
	}
	return s.post(ctx, func(context.Context) { s.publish() })
}

// EndRecording stops the capture and sends it to the selected room. A capture
// with no audio is dropped with ErrEmptyMessage and nothing is sent.
func (s *Session) EndRecording(ctx context.Context) (domain.Message, error) {
	if s.capture == nil {
		return domain.Message{}, ErrNoMicrophone
	}
	rec, err := s.capture.End()
	_ = s.post(ctx, func(context.Context) {
		if err != nil {
			s.setNotice("record failed: " + err.Error())
			return
		}
		s.publish()
	})
	if err != nil {
		return domain.Message{}, err
	}
	if rec.Empty() {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	return s.SendRecording(ctx, rec.Data, rec.MIME)
}
