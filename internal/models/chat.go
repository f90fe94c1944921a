package models

import "time"

// ChatKind classifies a room message.
type ChatKind string

const (
	ChatKindChat      ChatKind = "chat"       // player-authored
	ChatKindSystem    ChatKind = "system"     // join/leave/resign annotations
	ChatKindGameEvent ChatKind = "game_event" // conclusions: checkmate, draw agreed
)

// SystemAuthor is the author recorded on messages the service generates itself.
const SystemAuthor = "system"

// ChatEvent is one room-scoped message. Events are append-only and ordered by
// acceptance time; the service never mutates or deletes them.
type ChatEvent struct {
	RoomID    string    `json:"room_id"`
	Author    string    `json:"author"`
	Kind      ChatKind  `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
