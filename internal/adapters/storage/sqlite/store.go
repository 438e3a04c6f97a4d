// Package sqlite persists rooms and the message log in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

var _ core.Store = (*Store)(nil)

type Store struct {
	sqlDB *sql.DB
}

// Open opens the database file and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps busy errors away under concurrent rooms
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, description, slug, created_at FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var (
			r       domain.Room
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Slug, &created); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (id, name, description, slug, created_at) VALUES (?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.Description, room.Slug, room.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE rooms SET name = ?, description = ?, slug = ? WHERE id = ?`,
		room.Name, room.Description, room.Slug, room.ID,
	)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg domain.Message) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, seq, sender_id, sender_name, body, audio, audio_mime, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.Seq, msg.SenderID, msg.SenderName, msg.Text, msg.Audio, msg.AudioMIME, msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Store) LastSequence(ctx context.Context, room domain.RoomID) (int64, error) {
	var last int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = ?`, room,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	return last, nil
}

func (s *Store) RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, room_id, seq, sender_id, sender_name, body, audio, audio_mime, created_at
		 FROM (SELECT * FROM messages WHERE room_id = ? ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`,
		room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var (
			m       domain.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Seq, &m.SenderID, &m.SenderName, &m.Text, &m.Audio, &m.AudioMIME, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
