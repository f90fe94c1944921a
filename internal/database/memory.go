package database

import (
	"context"
	"errors"
	"sync"

	"github.com/knightwatch/chessd/internal/models"
)

// MemoryStore is a map-backed Store for tests and local development. FailSaves and
// FailChat force storage errors so callers can exercise durability-gap handling.
type MemoryStore struct {
	mu    sync.Mutex
	games map[string]*models.Game
	chat  map[string][]models.ChatEvent

	FailSaves bool
	FailChat  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string]*models.Game),
		chat:  make(map[string][]models.ChatEvent),
	}
}

func (m *MemoryStore) LoadGame(_ context.Context, roomID string) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[roomID]
	if !ok {
		return nil, ErrNotExist
	}
	return g.Clone(), nil
}

func (m *MemoryStore) SaveGame(_ context.Context, g *models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return errors.New("memory store: saves disabled")
	}
	m.games[g.RoomID] = g.Clone()
	return nil
}

func (m *MemoryStore) ListGames(_ context.Context, f GameFilter) ([]*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Game
	for _, g := range m.games {
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		if f.Visibility != "" && g.Visibility != f.Visibility {
			continue
		}
		out = append(out, g.Clone())
	}
	return out, nil
}

func (m *MemoryStore) ListGamesByUser(_ context.Context, userID string) ([]*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Game
	for _, g := range m.games {
		if (g.White != nil && g.White.UserID.String() == userID) ||
			(g.Black != nil && g.Black.UserID.String() == userID) {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendChat(_ context.Context, ev *models.ChatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChat {
		return errors.New("memory store: chat disabled")
	}
	m.chat[ev.RoomID] = append(m.chat[ev.RoomID], *ev)
	return nil
}

func (m *MemoryStore) LoadChatHistory(_ context.Context, roomID string, limit int) ([]models.ChatEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.chat[roomID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]models.ChatEvent, len(events))
	copy(out, events)
	return out, nil
}
