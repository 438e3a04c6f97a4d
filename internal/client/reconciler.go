package client

import (
	"sort"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseLoading buffers live messages until history lands.
	PhaseLoading
	PhaseLive
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLive:
		return "live"
	default:
		return "idle"
	}
}

// RoomView is a copy of what the user sees for the selected room.
type RoomView struct {
	Room     domain.RoomID
	Phase    Phase
	Messages []domain.Message
	Members  []core.MemberDTO
	Typing   map[domain.UserID]string
}

// Reconciler merges one history fetch with the live stream into a single
// ordered list. It is not safe for concurrent use; Session owns it.
type Reconciler struct {
	room     domain.RoomID
	phase    Phase
	gen      uint64
	messages []domain.Message
	seen     map[domain.MessageID]struct{}
	buffer   []domain.Message
	members  []core.MemberDTO
	typing   map[domain.UserID]string
}

func NewReconciler() *Reconciler {
	r := &Reconciler{}
	r.reset("")
	return r
}

func (r *Reconciler) reset(room domain.RoomID) {
	r.room = room
	r.phase = PhaseIdle
	r.messages = nil
	r.seen = make(map[domain.MessageID]struct{})
	r.buffer = nil
	r.members = nil
	r.typing = make(map[domain.UserID]string)
}

func (r *Reconciler) Room() domain.RoomID { return r.room }
func (r *Reconciler) Phase() Phase        { return r.phase }
func (r *Reconciler) Token() uint64       { return r.gen }

// Select drops everything held for the previous room and starts loading room.
// The returned token must be passed to ApplyHistory.
func (r *Reconciler) Select(room domain.RoomID) uint64 {
	r.reset(room)
	r.phase = PhaseLoading
	r.gen++
	return r.gen
}

// Resync keeps the visible list and goes back to loading, for a re-fetch
// after reconnecting. Ephemeral state is cleared; the join ack reseeds the roster.
func (r *Reconciler) Resync() uint64 {
	if r.room == "" {
		return r.gen
	}
	r.phase = PhaseLoading
	r.buffer = nil
	r.members = nil
	r.typing = make(map[domain.UserID]string)
	r.gen++
	return r.gen
}

func (r *Reconciler) Deselect() {
	r.reset("")
	r.gen++
}

// ApplyHistory merges a history result and flushes buffered live messages.
// Results for a superseded selection are ignored.
func (r *Reconciler) ApplyHistory(token uint64, history []domain.Message) bool {
	if token != r.gen || r.phase != PhaseLoading {
		return false
	}
	for _, m := range history {
		r.insert(m)
	}
	for _, m := range r.buffer {
		r.insert(m)
	}
	r.buffer = nil
	r.phase = PhaseLive
	return true
}

// HistoryFailed leaves loading so buffered messages are shown anyway.
func (r *Reconciler) HistoryFailed(token uint64) {
	if token != r.gen || r.phase != PhaseLoading {
		return
	}
	for _, m := range r.buffer {
		r.insert(m)
	}
	r.buffer = nil
	r.phase = PhaseLive
}

// OnMessage handles a live message or the ack of our own send.
func (r *Reconciler) OnMessage(m domain.Message) {
	if m.RoomID != r.room || r.phase == PhaseIdle {
		return
	}
	if r.phase == PhaseLoading {
		r.buffer = append(r.buffer, m)
		return
	}
	r.insert(m)
}

func (r *Reconciler) insert(m domain.Message) {
	if _, dup := r.seen[m.ID]; dup {
		return
	}
	r.seen[m.ID] = struct{}{}
	i := sort.Search(len(r.messages), func(i int) bool {
		return after(r.messages[i], m)
	})
	r.messages = append(r.messages, domain.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = m
}

func after(a, b domain.Message) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.ID > b.ID
}

func (r *Reconciler) OnMembers(room domain.RoomID, members []core.MemberDTO) {
	if room != r.room || r.room == "" {
		return
	}
	r.members = append([]core.MemberDTO{}, members...)
}

// SeedMembers applies the join ack roster unless a push already replaced it.
func (r *Reconciler) SeedMembers(token uint64, members []core.MemberDTO) {
	if token != r.gen || r.members != nil {
		return
	}
	r.members = append([]core.MemberDTO{}, members...)
}

func (r *Reconciler) OnTyping(room domain.RoomID, p core.TypingChangedPayload) {
	if room != r.room || r.room == "" {
		return
	}
	if p.Typing {
		r.typing[p.UserID] = p.Username
	} else {
		delete(r.typing, p.UserID)
	}
}

func (r *Reconciler) View() RoomView {
	typing := make(map[domain.UserID]string, len(r.typing))
	for k, v := range r.typing {
		typing[k] = v
	}
	return RoomView{
		Room:     r.room,
		Phase:    r.phase,
		Messages: append([]domain.Message(nil), r.messages...),
		Members:  append([]core.MemberDTO(nil), r.members...),
		Typing:   typing,
	}
}
