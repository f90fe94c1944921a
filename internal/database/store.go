package database

import (
	"context"
	"errors"

	"github.com/knightwatch/chessd/internal/models"
)

// ErrNotExist is returned by LoadGame when no row matches the room id.
var ErrNotExist = errors.New("game does not exist")

// GameFilter narrows ListGames. Zero values match everything.
type GameFilter struct {
	Status     models.GameStatus
	Visibility models.Visibility
}

// Store is the persistence surface the lobby and game sessions consume. Saves are
// upserts keyed by room id; chat is append-only.
type Store interface {
	LoadGame(ctx context.Context, roomID string) (*models.Game, error)
	SaveGame(ctx context.Context, g *models.Game) error
	ListGames(ctx context.Context, f GameFilter) ([]*models.Game, error)
	ListGamesByUser(ctx context.Context, userID string) ([]*models.Game, error)
	AppendChat(ctx context.Context, ev *models.ChatEvent) error
	LoadChatHistory(ctx context.Context, roomID string, limit int) ([]models.ChatEvent, error)
}
