// Package lobby creates games and routes join requests into their room sessions.
package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/chessd/internal/auth"
	"github.com/knightwatch/chessd/internal/database"
	"github.com/knightwatch/chessd/internal/game"
	"github.com/knightwatch/chessd/internal/models"
	"github.com/knightwatch/chessd/internal/rules"
)

// CreateRequest carries the parameters for a new game.
type CreateRequest struct {
	Name       string            `json:"name"`
	Type       models.GameType   `json:"type"`
	Visibility models.Visibility `json:"visibility"`
	Password   string            `json:"password,omitempty"`
}

// Coordinator owns game creation and join routing. Joins go through the room's
// session so the waiting-to-active flip is serialized with every other mutation of
// that room.
type Coordinator struct {
	store    database.Store
	sessions *game.SessionStore
	logger   *logrus.Logger
}

// NewCoordinator wires the lobby against the store and the live session map.
func NewCoordinator(store database.Store, sessions *game.SessionStore, logger *logrus.Logger) *Coordinator {
	return &Coordinator{store: store, sessions: sessions, logger: logger}
}

// CreateGame persists a fresh game and adopts it into a live session. The creator
// always takes white. Multiplayer games wait for an opponent; AI games start
// immediately since the engine's seat needs no join.
func (c *Coordinator) CreateGame(ctx context.Context, creator game.Actor, req CreateRequest) (*models.Game, error) {
	switch req.Type {
	case models.TypeMultiplayer, models.TypeAI:
	case "":
		req.Type = models.TypeMultiplayer
	default:
		return nil, fmt.Errorf("%w: unknown game type %q", game.ErrValidation, req.Type)
	}
	switch req.Visibility {
	case models.VisibilityPublic, models.VisibilityPrivate:
	case "":
		req.Visibility = models.VisibilityPublic
	default:
		return nil, fmt.Errorf("%w: unknown visibility %q", game.ErrValidation, req.Visibility)
	}
	if req.Visibility == models.VisibilityPrivate && req.Password == "" {
		return nil, fmt.Errorf("%w: private games need a password", game.ErrValidation)
	}

	var passwordHash string
	if req.Visibility == models.VisibilityPrivate {
		hash, err := auth.HashRoomPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		passwordHash = hash
	}

	roomID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate room id: %w", err)
	}

	now := time.Now()
	g := &models.Game{
		RoomID:       roomID.String(),
		Name:         req.Name,
		White:        &models.Seat{UserID: creator.UserID, Username: creator.Username},
		Status:       models.StatusWaiting,
		Type:         req.Type,
		Visibility:   req.Visibility,
		PasswordHash: passwordHash,
		Position:     rules.StartingFEN,
		Moves:        []models.Move{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Type == models.TypeAI {
		// Black stays permanently unseated for the engine; play can begin at once.
		g.Status = models.StatusActive
	}

	if err := c.store.SaveGame(ctx, g); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrStorage, err)
	}
	c.sessions.Adopt(g.Clone())

	c.logger.WithFields(logrus.Fields{
		"room":       g.RoomID,
		"type":       g.Type,
		"visibility": g.Visibility,
		"creator":    creator.UserID,
	}).Info("game created")
	return g, nil
}

// JoinGame seats the requester in the room, delegating to the session so the seat
// check and the waiting-to-active transition are atomic per room.
func (c *Coordinator) JoinGame(ctx context.Context, requester game.Actor, roomID, password string) (models.GameState, error) {
	sess, err := c.sessions.GetOrLoad(ctx, roomID)
	if err != nil {
		return models.GameState{}, err
	}
	return sess.Join(ctx, requester, password)
}

// ListGames returns games matching the filter. Read-only.
func (c *Coordinator) ListGames(ctx context.Context, f database.GameFilter) ([]*models.Game, error) {
	games, err := c.store.ListGames(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrStorage, err)
	}
	return games, nil
}

// ListUserGames returns games in which the user holds a seat. Read-only.
func (c *Coordinator) ListUserGames(ctx context.Context, userID uuid.UUID) ([]*models.Game, error) {
	games, err := c.store.ListGamesByUser(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrStorage, err)
	}
	return games, nil
}
