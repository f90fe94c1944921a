package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus tracks the room lifecycle. Transitions are waiting -> active -> finished;
// finished is terminal.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

// GameType distinguishes two-human rooms from rooms where the engine holds black.
type GameType string

const (
	TypeMultiplayer GameType = "multiplayer"
	TypeAI          GameType = "ai"
)

// Visibility controls whether a room is joinable without a password.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Color identifies a seat. Winner additionally uses "draw".
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Seat is an occupied color slot.
type Seat struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// Move is a single applied ply. Rows are append-only; history is never rewritten.
type Move struct {
	UCI      string    `json:"uci"`
	SAN      string    `json:"san"`
	Color    Color     `json:"color"`
	PlayedAt time.Time `json:"played_at"`
}

// Game is the aggregate root for one room. The Position FEN is the single source of
// truth for whose turn it is and which moves are legal next.
type Game struct {
	RoomID       string     `json:"room_id"`
	Name         string     `json:"name,omitempty"`
	White        *Seat      `json:"white,omitempty"`
	Black        *Seat      `json:"black,omitempty"`
	Status       GameStatus `json:"status"`
	Type         GameType   `json:"type"`
	Visibility   Visibility `json:"visibility"`
	PasswordHash string     `json:"-"`
	Position     string     `json:"position"`
	Moves        []Move     `json:"moves"`
	Winner       string     `json:"winner,omitempty"` // "white", "black" or "draw" once finished
	DrawOfferBy  Color      `json:"draw_offer_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SeatOf returns the color the given user occupies, if any.
func (g *Game) SeatOf(userID uuid.UUID) (Color, bool) {
	if g.White != nil && g.White.UserID == userID {
		return White, true
	}
	if g.Black != nil && g.Black.UserID == userID {
		return Black, true
	}
	return "", false
}

// SeatFor returns the seat holding the given color, or nil for an open slot.
func (g *Game) SeatFor(c Color) *Seat {
	if c == White {
		return g.White
	}
	return g.Black
}

// BothSeated reports whether both color slots are filled.
func (g *Game) BothSeated() bool {
	return g.White != nil && g.Black != nil
}

// Clone deep-copies the aggregate so a mutation can be validated and persisted before
// it replaces the live state.
func (g *Game) Clone() *Game {
	cp := *g
	if g.White != nil {
		w := *g.White
		cp.White = &w
	}
	if g.Black != nil {
		b := *g.Black
		cp.Black = &b
	}
	cp.Moves = make([]Move, len(g.Moves))
	copy(cp.Moves, g.Moves)
	return &cp
}

// GameState is the wire snapshot broadcast to room subscribers. Check and turn are
// derived from the position, never stored on the aggregate.
type GameState struct {
	RoomID      string     `json:"room_id"`
	Name        string     `json:"name,omitempty"`
	White       *Seat      `json:"white,omitempty"`
	Black       *Seat      `json:"black,omitempty"`
	Status      GameStatus `json:"status"`
	Type        GameType   `json:"type"`
	Position    string     `json:"position"`
	Turn        Color      `json:"turn"`
	InCheck     bool       `json:"in_check"`
	Winner      string     `json:"winner,omitempty"`
	DrawOfferBy Color      `json:"draw_offer_by,omitempty"`
	Moves       []Move     `json:"moves"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
