package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomEntry struct {
	meta domain.Room
	svc  core.RoomService
}

// RoomManagerImpl keeps room metadata in memory, backed by the store,
// and starts a room actor the first time a room is used.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry

	store core.Store
	opts  core.RoomOptions
}

func NewRoomManager(store core.Store, opts core.RoomOptions) *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms: make(map[domain.RoomID]*roomEntry),
		store: store,
		opts:  opts,
	}
}

// SetDropHandler must be called before any room starts.
func (f *RoomManagerImpl) SetDropHandler(h core.DropHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts.OnDropped = h
}

// Load reads persisted rooms and creates any default room that is missing.
func (f *RoomManagerImpl) Load(ctx context.Context, defaults []string) error {
	rooms, err := f.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	f.mu.Lock()
	for _, r := range rooms {
		f.rooms[r.ID] = &roomEntry{meta: r}
	}
	f.mu.Unlock()

	for _, name := range defaults {
		if _, ok := f.findByName(name, ""); ok {
			continue
		}
		if _, err := f.Create(ctx, name, ""); err != nil {
			return fmt.Errorf("seed room %q: %w", name, err)
		}
	}
	log.Info().Str("module", "app.rooms").Int("rooms", len(f.List())).Msg("rooms loaded")
	return nil
}

func (f *RoomManagerImpl) Create(ctx context.Context, name, description string) (domain.Room, error) {
	room, err := domain.NewRoom(name, description)
	if err != nil {
		return domain.Room{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.findByNameLocked(string(room.Name), ""); dup {
		return domain.Room{}, fmt.Errorf("%w: room %q already exists", domain.ErrValidation, room.Name)
	}
	if err := f.store.CreateRoom(ctx, *room); err != nil {
		return domain.Room{}, fmt.Errorf("persist room: %w", err)
	}
	f.rooms[room.ID] = &roomEntry{meta: *room}
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Str("name", string(room.Name)).Msg("room created")
	return *room, nil
}

func (f *RoomManagerImpl) Update(ctx context.Context, id domain.RoomID, name, description string) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	edited, err := e.meta.WithMeta(name, description)
	if err != nil {
		return domain.Room{}, err
	}
	if _, dup := f.findByNameLocked(string(edited.Name), id); dup {
		return domain.Room{}, fmt.Errorf("%w: room %q already exists", domain.ErrValidation, edited.Name)
	}
	if err := f.store.UpdateRoom(ctx, edited); err != nil {
		return domain.Room{}, fmt.Errorf("persist room: %w", err)
	}
	e.meta = edited
	if e.svc != nil {
		e.svc.SetRoom(edited)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("name", string(edited.Name)).Msg("room updated")
	return edited, nil
}

func (f *RoomManagerImpl) Lookup(id domain.RoomID) (domain.Room, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return e.meta, nil
}

// Get returns the room actor, starting it on first use.
func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, error) {
	f.mu.RLock()
	e, ok := f.rooms[id]
	if ok && e.svc != nil {
		svc := e.svc
		f.mu.RUnlock()
		return svc, nil
	}
	f.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok = f.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if e.svc == nil {
		e.svc = core.NewRoomService(e.meta, f.store, f.opts)
	}
	return e.svc, nil
}

// Active returns the actor only if it is already running.
func (f *RoomManagerImpl) Active(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.rooms[id]
	if !ok || e.svc == nil {
		return nil, false
	}
	return e.svc, true
}

func (f *RoomManagerImpl) List() []domain.Room {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Room, 0, len(f.rooms))
	for _, e := range f.rooms {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *RoomManagerImpl) StopAll() {
	f.mu.Lock()
	running := make([]core.RoomService, 0, len(f.rooms))
	for _, e := range f.rooms {
		if e.svc != nil {
			running = append(running, e.svc)
			e.svc = nil
		}
	}
	f.mu.Unlock()
	for _, svc := range running {
		svc.Stop()
	}
	log.Info().Str("module", "app.rooms").Int("stopped", len(running)).Msg("rooms stopped")
}

func (f *RoomManagerImpl) findByName(name string, except domain.RoomID) (domain.Room, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.findByNameLocked(name, except)
}

func (f *RoomManagerImpl) findByNameLocked(name string, except domain.RoomID) (domain.Room, bool) {
	name = strings.TrimSpace(name)
	for id, e := range f.rooms {
		if id != except && strings.EqualFold(string(e.meta.Name), name) {
			return e.meta, true
		}
	}
	return domain.Room{}, false
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)
