package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxRoomNameRunes        = 64
	MaxRoomDescriptionRunes = 280
)

type (
	RoomName string
	RoomID   string
)

type Room struct {
	ID          RoomID    `json:"id"`
	Name        RoomName  `json:"name"`
	Description string    `json:"description,omitempty"`
	Slug        string    `json:"slug,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRoom validates metadata and assigns identity and creation time.
func NewRoom(name, description string) (*Room, error) {
	n, d, err := normalizeRoomMeta(name, description)
	if err != nil {
		return nil, err
	}
	return &Room{
		ID:          RoomID(uuid.NewString()),
		Name:        RoomName(n),
		Description: d,
		Slug:        Slugify(n),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// WithMeta returns a copy with edited metadata. Identity and creation time never change.
func (r Room) WithMeta(name, description string) (Room, error) {
	n, d, err := normalizeRoomMeta(name, description)
	if err != nil {
		return Room{}, err
	}
	r.Name = RoomName(n)
	r.Description = d
	r.Slug = Slugify(n)
	return r, nil
}

func normalizeRoomMeta(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return "", "", fmt.Errorf("%w: room name is required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameRunes {
		return "", "", fmt.Errorf("%w: room name must be at most %d characters", ErrValidation, MaxRoomNameRunes)
	}
	if utf8.RuneCountInString(description) > MaxRoomDescriptionRunes {
		return "", "", fmt.Errorf("%w: room description must be at most %d characters", ErrValidation, MaxRoomDescriptionRunes)
	}
	return name, description, nil
}

// Slugify lowercases and joins letter/digit runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
