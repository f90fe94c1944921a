package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knightwatch/chessd/internal/models"
)

// Postgres implements Store over a pgx pool.
//
// Expected schema:
//
//	CREATE TABLE games (
//	    room_id       text PRIMARY KEY,
//	    name          text NOT NULL DEFAULT '',
//	    white_id      uuid,
//	    white_name    text,
//	    black_id      uuid,
//	    black_name    text,
//	    status        text NOT NULL,
//	    game_type     text NOT NULL,
//	    visibility    text NOT NULL,
//	    password_hash text NOT NULL DEFAULT '',
//	    position      text NOT NULL,
//	    moves         jsonb NOT NULL DEFAULT '[]',
//	    winner        text NOT NULL DEFAULT '',
//	    draw_offer_by text NOT NULL DEFAULT '',
//	    created_at    timestamptz NOT NULL,
//	    updated_at    timestamptz NOT NULL
//	);
//
//	CREATE TABLE chat_events (
//	    id         bigserial PRIMARY KEY,
//	    room_id    text NOT NULL REFERENCES games (room_id),
//	    author     text NOT NULL,
//	    kind       text NOT NULL,
//	    body       text NOT NULL,
//	    created_at timestamptz NOT NULL
//	);
//	CREATE INDEX chat_events_room_idx ON chat_events (room_id, id);
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect builds a pool from the POSTGRES_USER / POSTGRES_PASSWORD / PG_HOST /
// PG_PORT / PG_DATABASE environment and pings it.
func Connect(ctx context.Context) (*Postgres, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

const gameColumns = `
	room_id, name, white_id, white_name, black_id, black_name,
	status, game_type, visibility, password_hash,
	position, moves, winner, draw_offer_by, created_at, updated_at
`

// SaveGame upserts the full aggregate keyed by room id.
func (p *Postgres) SaveGame(ctx context.Context, g *models.Game) error {
	movesJSON, err := json.Marshal(g.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}

	var whiteID, whiteName, blackID, blackName any
	if g.White != nil {
		whiteID, whiteName = g.White.UserID, g.White.Username
	}
	if g.Black != nil {
		blackID, blackName = g.Black.UserID, g.Black.Username
	}

	q := `
		INSERT INTO games (` + gameColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (room_id) DO UPDATE SET
			white_id = EXCLUDED.white_id,
			white_name = EXCLUDED.white_name,
			black_id = EXCLUDED.black_id,
			black_name = EXCLUDED.black_name,
			status = EXCLUDED.status,
			position = EXCLUDED.position,
			moves = EXCLUDED.moves,
			winner = EXCLUDED.winner,
			draw_offer_by = EXCLUDED.draw_offer_by,
			updated_at = EXCLUDED.updated_at
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			g.RoomID, g.Name, whiteID, whiteName, blackID, blackName,
			g.Status, g.Type, g.Visibility, g.PasswordHash,
			g.Position, movesJSON, g.Winner, g.DrawOfferBy, g.CreatedAt, g.UpdatedAt,
		)
		return err
	})
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var (
		g          models.Game
		whiteID    *string
		whiteName  *string
		blackID    *string
		blackName  *string
		movesJSON  []byte
	)
	err := row.Scan(
		&g.RoomID, &g.Name, &whiteID, &whiteName, &blackID, &blackName,
		&g.Status, &g.Type, &g.Visibility, &g.PasswordHash,
		&g.Position, &movesJSON, &g.Winner, &g.DrawOfferBy, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if whiteID != nil {
		g.White = seatFromRow(*whiteID, whiteName)
	}
	if blackID != nil {
		g.Black = seatFromRow(*blackID, blackName)
	}
	if err := json.Unmarshal(movesJSON, &g.Moves); err != nil {
		return nil, fmt.Errorf("unmarshal moves for %s: %w", g.RoomID, err)
	}
	return &g, nil
}

func seatFromRow(id string, name *string) *models.Seat {
	seat := &models.Seat{}
	if uid, err := uuid.Parse(id); err == nil {
		seat.UserID = uid
	}
	if name != nil {
		seat.Username = *name
	}
	return seat
}

// LoadGame fetches one aggregate, or ErrNotExist.
func (p *Postgres) LoadGame(ctx context.Context, roomID string) (*models.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games WHERE room_id = $1`
	g, err := scanGame(p.pool.QueryRow(ctx, q, roomID))
	if err == pgx.ErrNoRows {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", roomID, err)
	}
	return g, nil
}

// ListGames returns games matching the filter, newest first.
func (p *Postgres) ListGames(ctx context.Context, f GameFilter) ([]*models.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Visibility != "" {
		args = append(args, f.Visibility)
		q += fmt.Sprintf(" AND visibility = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"
	return p.queryGames(ctx, q, args...)
}

// ListGamesByUser returns games where the user holds either seat, newest first.
func (p *Postgres) ListGamesByUser(ctx context.Context, userID string) ([]*models.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games
		WHERE white_id = $1 OR black_id = $1
		ORDER BY created_at DESC`
	return p.queryGames(ctx, q, userID)
}

func (p *Postgres) queryGames(ctx context.Context, q string, args ...any) ([]*models.Game, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// AppendChat inserts one chat event.
func (p *Postgres) AppendChat(ctx context.Context, ev *models.ChatEvent) error {
	q := `
		INSERT INTO chat_events (room_id, author, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, ev.RoomID, ev.Author, ev.Kind, ev.Body, ev.CreatedAt)
		return err
	})
}

// LoadChatHistory returns up to limit most recent events for the room, oldest first.
func (p *Postgres) LoadChatHistory(ctx context.Context, roomID string, limit int) ([]models.ChatEvent, error) {
	q := `
		SELECT room_id, author, kind, body, created_at
		FROM (
			SELECT id, room_id, author, kind, body, created_at
			FROM chat_events WHERE room_id = $1
			ORDER BY id DESC LIMIT $2
		) recent
		ORDER BY id ASC
	`
	rows, err := p.pool.Query(ctx, q, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var events []models.ChatEvent
	for rows.Next() {
		var ev models.ChatEvent
		if err := rows.Scan(&ev.RoomID, &ev.Author, &ev.Kind, &ev.Body, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
