package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrUnknownSession means the sid is not (or no longer) bound to a transport.
var ErrUnknownSession = errors.New("unknown session")

type Limits struct {
	MaxTextRunes   int
	MaxAudioBytes  int
	HistoryDefault int
	HistoryMax     int
}

func (l Limits) withDefaults() Limits {
	if l.MaxTextRunes <= 0 {
		l.MaxTextRunes = 2000
	}
	if l.MaxAudioBytes <= 0 {
		l.MaxAudioBytes = 1 << 20
	}
	if l.HistoryDefault <= 0 {
		l.HistoryDefault = 50
	}
	if l.HistoryMax < l.HistoryDefault {
		l.HistoryMax = max(200, l.HistoryDefault)
	}
	return l
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Messages core.MessageStore
	Limiter  *app.RateLimiter
	Limits   Limits
}

// Connect binds a fresh transport session for user.
func (o *Orchestrator) Connect(sid core.SessionID, user *domain.User, sig core.SignalConnection, cancel context.CancelFunc) core.MemberSession {
	sess := core.NewMemberSession(domain.NewMember(user), sig)
	o.Registry.BindSignal(sid, sess, cancel)
	return sess
}

// OnDisconnect releases every membership and typing flag held by sid.
// It returns only after each room has processed the leave.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sid core.SessionID) {
	for _, id := range o.Registry.Unbind(sid) {
		_ = o.leaveRoom(ctx, sid, id)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session disconnected")
}

func (o *Orchestrator) WhoAmI(sid core.SessionID) (*domain.User, bool) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, false
	}
	u := *sess.Meta().User
	return &u, true
}

// Rename updates the display name of this session and refreshes rosters it appears in.
func (o *Orchestrator) Rename(ctx context.Context, sid core.SessionID, username string) (*domain.User, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, ErrUnknownSession
	}
	renamed := *sess.Meta().User
	if err := renamed.SetUsername(username); err != nil {
		return nil, err
	}
	next := core.NewMemberSession(&domain.Member{User: &renamed, JoinedAt: sess.Meta().JoinedAt}, sess.Signal())
	o.Registry.ReplaceSession(sid, next)

	for _, id := range o.Registry.RoomsOf(sid) {
		svc, err := o.Rooms.Get(id)
		if err != nil {
			continue
		}
		if _, err := svc.UpdateMember(ctx, sid, next); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Msg("rename not applied")
		}
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("username", renamed.Username).Msg("renamed")
	return &renamed, nil
}

// OnDropped runs on the room goroutine; it may only act on transport state.
func (o *Orchestrator) OnDropped(room domain.RoomID, member core.MemberSession) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(room, member) {
	case app.KickMember:
		if sid, ok := o.Registry.SIDOf(member); ok {
			o.KickBySID(sid)
		} else {
			member.Signal().Close()
		}
	case app.MarkSlow, app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("room", string(room)).Str("user", string(member.Meta().User.ID)).Msg("frame dropped")
	}
}

// KickBySID closes the transport; the read pump then runs OnDisconnect.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	o.Registry.Cancel(sid)
	if ok {
		sess.Signal().Close()
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session kicked")
}

func (o *Orchestrator) limits() Limits { return o.Limits.withDefaults() }

func (o *Orchestrator) canAccess(user *domain.User, room domain.Room) bool {
	return o.Policy == nil || o.Policy.CanAccess(user, room)
}
