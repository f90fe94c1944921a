package game

import "github.com/knightwatch/chessd/internal/models"

// Event names pushed to subscribers.
const (
	EventGameState          = "game-state"
	EventChatHistory        = "chat-history"
	EventMoveMade           = "move-made"
	EventAIMoveMade         = "ai-move-made"
	EventChatMessage        = "chat-message"
	EventDrawOffer          = "draw-offer"
	EventDrawOfferDeclined  = "draw-offer-declined"
	EventPlayerJoined       = "player-joined"
	EventPlayerDisconnected = "player-disconnected"
	EventError              = "error"
	EventPong               = "pong"
)

// Event is the single wire envelope for server-to-client messages. Only the fields
// relevant to Type are set; everything else is omitted from the JSON.
type Event struct {
	Type     string              `json:"type"`
	State    *models.GameState   `json:"state,omitempty"`
	Chat     *models.ChatEvent   `json:"chat,omitempty"`
	History  []models.ChatEvent  `json:"history,omitempty"`
	Color    models.Color        `json:"color,omitempty"`
	UserID   string              `json:"user_id,omitempty"`
	Username string              `json:"username,omitempty"`
	Message  string              `json:"message,omitempty"`
}
