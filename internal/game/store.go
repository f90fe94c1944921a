package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/knightwatch/chessd/internal/cache"
	"github.com/knightwatch/chessd/internal/database"
	"github.com/knightwatch/chessd/internal/models"
)

// SessionStore maps room ids to live sessions. A session is created the first time
// anything touches its room and re-hydrated from persistence if the process has no
// live copy yet.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store    database.Store
	registry *Registry
	journal  *cache.Journal
	logger   *logrus.Logger
}

// NewSessionStore wires the shared collaborators every session will use.
func NewSessionStore(store database.Store, registry *Registry, journal *cache.Journal, logger *logrus.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		store:    store,
		registry: registry,
		journal:  journal,
		logger:   logger,
	}
}

// GetOrLoad returns the live session for a room, loading the aggregate from the
// store when none exists in this process.
func (ss *SessionStore) GetOrLoad(ctx context.Context, roomID string) (*Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sessions[roomID]; ok {
		return s, nil
	}
	g, err := ss.store.LoadGame(ctx, roomID)
	if errors.Is(err, database.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s := NewSession(g, ss.store, ss.registry, ss.journal, ss.logger)
	ss.sessions[roomID] = s
	return s, nil
}

// Adopt registers a session for a freshly created aggregate, or returns the live
// one if the room is already being served.
func (ss *SessionStore) Adopt(g *models.Game) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sessions[g.RoomID]; ok {
		return s
	}
	s := NewSession(g, ss.store, ss.registry, ss.journal, ss.logger)
	ss.sessions[g.RoomID] = s
	return s
}

// Evict drops a session from memory once its room is finished and empty. State is
// already durable; a later subscriber re-hydrates from the store.
func (ss *SessionStore) Evict(roomID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sessions[roomID]; ok {
		if len(ss.registry.Subscribers(roomID)) == 0 && s.Snapshot().Status == models.StatusFinished {
			delete(ss.sessions, roomID)
		}
	}
}
