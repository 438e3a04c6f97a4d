package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTypingTTL     = 2 * time.Second
	defaultCommandBuffer = 64
)

type RoomOptions struct {
	TypingTTL     time.Duration
	CommandBuffer int
	OnDropped     DropHandler
}

// room commands; each is handled on the actor goroutine.
type (
	joinCmd struct {
		sid   SessionID
		ms    MemberSession
		reply chan JoinResult
	}
	leaveCmd struct {
		sid   SessionID
		reply chan bool
	}
	updateCmd struct {
		sid   SessionID
		ms    MemberSession
		reply chan bool
	}
	membersCmd struct {
		reply chan []MemberDTO
	}
	sendCmd struct {
		ctx   context.Context
		sid   SessionID
		draft domain.Message
		reply chan sendResult
	}
	typingStartCmd struct {
		sid   SessionID
		reply chan error
	}
	typingStopCmd struct {
		sid   SessionID
		reply chan error
	}
	typingExpireCmd struct {
		user domain.UserID
		gen  uint64
	}
)

type sendResult struct {
	msg domain.Message
	err error
}

// typingState exists only while a user is typing; absence means idle.
type typingState struct {
	owner SessionID
	gen   uint64
	timer *time.Timer
}

// roomImpl is a per-room actor.
// It never closes adapter-owned resources.
type roomImpl struct {
	metaMu sync.RWMutex
	room   domain.Room

	store MessageStore
	opts  RoomOptions

	cmds     chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// actor-owned
	members   map[SessionID]MemberSession
	joinedAt  map[SessionID]time.Time
	typing    map[domain.UserID]*typingState
	nextSeq   int64
	seqLoaded bool
}

// NewRoomService starts the room goroutine. Stop must be called to release it.
func NewRoomService(room domain.Room, store MessageStore, opts RoomOptions) RoomService {
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = defaultCommandBuffer
	}
	r := &roomImpl{
		room:     room,
		store:    store,
		opts:     opts,
		cmds:     make(chan any, opts.CommandBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		members:  make(map[SessionID]MemberSession),
		joinedAt: make(map[SessionID]time.Time),
		typing:   make(map[domain.UserID]*typingState),
	}
	go r.run()
	return r
}

func (r *roomImpl) Room() domain.Room {
	r.metaMu.RLock()
	defer r.metaMu.RUnlock()
	return r.room
}

func (r *roomImpl) SetRoom(room domain.Room) {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	r.room = room
}

func (r *roomImpl) id() domain.RoomID { return r.Room().ID }

func (r *roomImpl) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.done
}

func (r *roomImpl) Join(ctx context.Context, sid SessionID, ms MemberSession) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	if err := r.submit(ctx, joinCmd{sid: sid, ms: ms, reply: reply}); err != nil {
		return JoinResult{}, err
	}
	return await(ctx, r.done, reply)
}

func (r *roomImpl) Leave(ctx context.Context, sid SessionID) (bool, error) {
	reply := make(chan bool, 1)
	if err := r.submit(ctx, leaveCmd{sid: sid, reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, r.done, reply)
}

func (r *roomImpl) UpdateMember(ctx context.Context, sid SessionID, ms MemberSession) (bool, error) {
	reply := make(chan bool, 1)
	if err := r.submit(ctx, updateCmd{sid: sid, ms: ms, reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, r.done, reply)
}

func (r *roomImpl) Members(ctx context.Context) ([]MemberDTO, error) {
	reply := make(chan []MemberDTO, 1)
	if err := r.submit(ctx, membersCmd{reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, r.done, reply)
}

func (r *roomImpl) Send(ctx context.Context, sid SessionID, draft domain.Message) (domain.Message, error) {
	reply := make(chan sendResult, 1)
	if err := r.submit(ctx, sendCmd{ctx: ctx, sid: sid, draft: draft, reply: reply}); err != nil {
		return domain.Message{}, err
	}
	res, err := await(ctx, r.done, reply)
	if err != nil {
		return domain.Message{}, err
	}
	return res.msg, res.err
}

func (r *roomImpl) StartTyping(ctx context.Context, sid SessionID) error {
	reply := make(chan error, 1)
	if err := r.submit(ctx, typingStartCmd{sid: sid, reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, r.done, reply)
	if err != nil {
		return err
	}
	return res
}

func (r *roomImpl) StopTyping(ctx context.Context, sid SessionID) error {
	reply := make(chan error, 1)
	if err := r.submit(ctx, typingStopCmd{sid: sid, reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, r.done, reply)
	if err != nil {
		return err
	}
	return res
}

func (r *roomImpl) submit(ctx context.Context, cmd any) error {
	select {
	case <-r.quit:
		return ErrRoomClosed
	default:
	}
	select {
	case r.cmds <- cmd:
		return nil
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		return zero, ErrRoomClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *roomImpl) run() {
	defer close(r.done)
	defer r.stopTimers()

	_ = r.loadSeq(context.Background())
	log.Info().Str("module", "core.room").Str("room", string(r.id())).Int64("last_seq", r.nextSeq).Msg("room started")

	for {
		select {
		case <-r.quit:
			log.Info().Str("module", "core.room").Str("room", string(r.id())).Msg("room stopped")
			return
		case cmd := <-r.cmds:
			r.handle(cmd)
		}
	}
}

func (r *roomImpl) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.join(c.sid, c.ms)
	case leaveCmd:
		c.reply <- r.leave(c.sid)
	case updateCmd:
		c.reply <- r.update(c.sid, c.ms)
	case membersCmd:
		c.reply <- r.snapshot()
	case sendCmd:
		msg, err := r.send(c.ctx, c.sid, c.draft)
		c.reply <- sendResult{msg: msg, err: err}
	case typingStartCmd:
		c.reply <- r.startTyping(c.sid)
	case typingStopCmd:
		c.reply <- r.stopTyping(c.sid)
	case typingExpireCmd:
		if st, ok := r.typing[c.user]; ok && st.gen == c.gen {
			r.clearTyping(c.user)
		}
	default:
		log.Error().Str("module", "core.room").Str("cmd", fmt.Sprintf("%T", cmd)).Msg("unknown room command")
	}
}

func (r *roomImpl) loadSeq(ctx context.Context) error {
	if r.seqLoaded {
		return nil
	}
	last, err := r.store.LastSequence(ctx, r.id())
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.id())).Msg("load last sequence")
		return fmt.Errorf("load last sequence: %w", err)
	}
	r.nextSeq = last
	r.seqLoaded = true
	return nil
}

func (r *roomImpl) join(sid SessionID, ms MemberSession) JoinResult {
	if _, ok := r.members[sid]; ok {
		return JoinResult{Members: r.snapshot()}
	}
	user := ms.Meta().User
	present := r.userPresent(user.ID)
	r.members[sid] = ms
	r.joinedAt[sid] = time.Now().UTC()
	log.Info().Str("module", "core.room").Str("room", string(r.id())).Str("sid", string(sid)).Str("user", string(user.ID)).Msg("member added")

	snap := r.snapshot()
	if !present {
		r.broadcastMembers(snap, sid)
	}
	return JoinResult{Members: snap, Joined: true}
}

func (r *roomImpl) leave(sid SessionID) bool {
	ms, ok := r.members[sid]
	if !ok {
		return false
	}
	delete(r.members, sid)
	delete(r.joinedAt, sid)
	uid := ms.Meta().User.ID
	log.Info().Str("module", "core.room").Str("room", string(r.id())).Str("sid", string(sid)).Str("user", string(uid)).Msg("member removed")

	stillPresent := r.userPresent(uid)
	if st, ok := r.typing[uid]; ok && (st.owner == sid || !stillPresent) {
		r.clearTyping(uid)
	}
	if !stillPresent {
		r.broadcastMembers(r.snapshot(), "")
	}
	return true
}

func (r *roomImpl) update(sid SessionID, ms MemberSession) bool {
	if _, ok := r.members[sid]; !ok {
		return false
	}
	before := r.snapshot()
	r.members[sid] = ms
	if after := r.snapshot(); !slices.Equal(before, after) {
		r.broadcastMembers(after, "")
	}
	return true
}

func (r *roomImpl) send(ctx context.Context, sid SessionID, draft domain.Message) (domain.Message, error) {
	ms, ok := r.members[sid]
	if !ok {
		return domain.Message{}, domain.ErrNotAMember
	}
	if err := r.loadSeq(ctx); err != nil {
		return domain.Message{}, err
	}

	user := ms.Meta().User
	msg := draft
	if msg.ID == "" {
		msg.ID = domain.MessageID(uuid.NewString())
	}
	msg.RoomID = r.id()
	msg.Seq = r.nextSeq + 1
	msg.SenderID = user.ID
	msg.SenderName = user.Username
	msg.CreatedAt = time.Now().UTC()

	if err := r.store.AppendMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(msg.RoomID)).Int64("seq", msg.Seq).Msg("persist message")
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	r.nextSeq = msg.Seq

	if _, ok := r.typing[user.ID]; ok {
		r.clearTyping(user.ID)
	}

	frame, err := EncodeEvent(EventMessageNew, msg.RoomID, "", MessagePayload{Message: NewMessageDTO(msg)})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode message")
		return msg, nil
	}
	res := r.fanout(frame, func(other SessionID, _ MemberSession) bool { return other != sid })
	log.Debug().Str("module", "core.room").Str("room", string(msg.RoomID)).Int64("seq", msg.Seq).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("message fanned out")
	return msg, nil
}

func (r *roomImpl) startTyping(sid SessionID) error {
	ms, ok := r.members[sid]
	if !ok {
		return domain.ErrNotAMember
	}
	user := ms.Meta().User
	if st, ok := r.typing[user.ID]; ok {
		st.timer.Stop()
		st.gen++
		st.owner = sid
		st.timer = r.armTyping(user.ID, st.gen)
		return nil
	}
	st := &typingState{owner: sid, gen: 1}
	st.timer = r.armTyping(user.ID, st.gen)
	r.typing[user.ID] = st
	r.broadcastTyping(user, true)
	return nil
}

func (r *roomImpl) stopTyping(sid SessionID) error {
	ms, ok := r.members[sid]
	if !ok {
		return domain.ErrNotAMember
	}
	uid := ms.Meta().User.ID
	if _, ok := r.typing[uid]; ok {
		r.clearTyping(uid)
	}
	return nil
}

// armTyping posts an expiry back to the actor; a stale gen is ignored there.
func (r *roomImpl) armTyping(uid domain.UserID, gen uint64) *time.Timer {
	return time.AfterFunc(r.opts.TypingTTL, func() {
		select {
		case r.cmds <- typingExpireCmd{user: uid, gen: gen}:
		case <-r.quit:
		}
	})
}

func (r *roomImpl) clearTyping(uid domain.UserID) {
	st, ok := r.typing[uid]
	if !ok {
		return
	}
	st.timer.Stop()
	delete(r.typing, uid)
	user := &domain.User{ID: uid}
	if owner, ok := r.members[st.owner]; ok {
		user = owner.Meta().User
	} else {
		for _, ms := range r.members {
			if u := ms.Meta().User; u.ID == uid {
				user = u
				break
			}
		}
	}
	r.broadcastTyping(user, false)
}

func (r *roomImpl) stopTimers() {
	for _, st := range r.typing {
		st.timer.Stop()
	}
}

func (r *roomImpl) broadcastTyping(user *domain.User, typing bool) {
	frame, err := EncodeEvent(EventTypingChanged, r.id(), "", TypingChangedPayload{
		UserID:   user.ID,
		Username: user.Username,
		Typing:   typing,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode typing")
		return
	}
	r.fanout(frame, func(_ SessionID, ms MemberSession) bool { return ms.Meta().User.ID != user.ID })
}

func (r *roomImpl) broadcastMembers(snap []MemberDTO, except SessionID) {
	frame, err := EncodeEvent(EventMembersChanged, r.id(), "", MembersChangedPayload{Members: snap})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode members")
		return
	}
	r.fanout(frame, func(sid SessionID, _ MemberSession) bool { return sid != except })
}

// fanout never blocks: a full recipient queue is reported, not waited on.
func (r *roomImpl) fanout(frame Frame, include func(SessionID, MemberSession) bool) PublishResult {
	res := PublishResult{}
	for sid, ms := range r.members {
		if !include(sid, ms) {
			continue
		}
		if err := ms.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, ms)
			continue
		}
		res.SendTo++
	}
	if r.opts.OnDropped != nil {
		for _, ms := range res.Dropped {
			r.opts.OnDropped(r.id(), ms)
		}
	}
	return res
}

func (r *roomImpl) userPresent(uid domain.UserID) bool {
	for _, ms := range r.members {
		if ms.Meta().User.ID == uid {
			return true
		}
	}
	return false
}

// snapshot collapses sessions into one entry per user, earliest join first.
func (r *roomImpl) snapshot() []MemberDTO {
	byUser := make(map[domain.UserID]MemberDTO, len(r.members))
	for sid, ms := range r.members {
		u := ms.Meta().User
		at := r.joinedAt[sid]
		if cur, ok := byUser[u.ID]; ok && !at.Before(cur.JoinedAt) {
			continue
		}
		byUser[u.ID] = MemberDTO{ID: u.ID, Username: u.Username, JoinedAt: at}
	}
	out := make([]MemberDTO, 0, len(byUser))
	for _, m := range byUser {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
