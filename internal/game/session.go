package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/chessd/internal/auth"
	"github.com/knightwatch/chessd/internal/cache"
	"github.com/knightwatch/chessd/internal/database"
	"github.com/knightwatch/chessd/internal/models"
	"github.com/knightwatch/chessd/internal/rules"
)

// DefaultChatHistoryLimit bounds how many messages a fresh subscriber receives.
const DefaultChatHistoryLimit = 200

// EngineUsername is the identity moves are attributed to in AI games. The engine
// never holds a connection; its moves are produced on demand.
const EngineUsername = "engine"

// Actor identifies the user behind a request.
type Actor struct {
	UserID   uuid.UUID
	Username string
}

// Session is the authoritative controller for one room. Every mutating action is
// serialized through its mutex: validate against the live state, mutate a clone,
// persist, commit, then broadcast. A broadcast therefore never out-runs what the
// store has accepted.
type Session struct {
	mu     sync.Mutex
	roomID string
	game   *models.Game

	store    database.Store
	registry *Registry
	journal  *cache.Journal
	logger   *logrus.Logger

	// PickMove supplies moves for the engine seat. Defaults to a random legal move.
	PickMove func(fen string) (string, error)
}

// NewSession wraps an aggregate in a live controller. The journal may be nil.
func NewSession(g *models.Game, store database.Store, registry *Registry, journal *cache.Journal, logger *logrus.Logger) *Session {
	return &Session{
		roomID:   g.RoomID,
		game:     g,
		store:    store,
		registry: registry,
		journal:  journal,
		logger:   logger,
		PickMove: rules.RandomMove,
	}
}

// RoomID returns the immutable room identifier.
func (s *Session) RoomID() string { return s.roomID }

// Snapshot returns the current wire state of the room.
func (s *Session) Snapshot() models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() models.GameState {
	g := s.game
	turn := models.White
	if t, err := rules.Turn(g.Position); err == nil {
		turn = models.Color(t)
	} else {
		s.logger.Warnf("room %s holds an unreadable position %q: %v", s.roomID, g.Position, err)
	}
	inCheck := false
	if n := len(g.Moves); n > 0 {
		san := g.Moves[n-1].SAN
		inCheck = strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#")
	}
	moves := make([]models.Move, len(g.Moves))
	copy(moves, g.Moves)
	return models.GameState{
		RoomID:      g.RoomID,
		Name:        g.Name,
		White:       g.White,
		Black:       g.Black,
		Status:      g.Status,
		Type:        g.Type,
		Position:    g.Position,
		Turn:        turn,
		InCheck:     inCheck,
		Winner:      g.Winner,
		DrawOfferBy: g.DrawOfferBy,
		Moves:       moves,
		UpdatedAt:   g.UpdatedAt,
	}
}

// requireActiveLocked gates actions that only make sense mid-game.
func (s *Session) requireActiveLocked() error {
	switch s.game.Status {
	case models.StatusFinished:
		return ErrGameFinished
	case models.StatusActive:
		return nil
	default:
		return fmt.Errorf("%w: game has not started", ErrInvalidState)
	}
}

// commitLocked persists the mutated clone and, only if the save succeeds, makes it
// the live state. On failure the previous state stays authoritative and nothing is
// broadcast.
func (s *Session) commitLocked(ctx context.Context, g *models.Game) error {
	g.UpdatedAt = time.Now()
	if err := s.store.SaveGame(ctx, g); err != nil {
		s.logger.Errorf("room %s: persisting game failed: %v", s.roomID, err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.game = g
	return nil
}

// appendChatLocked persists and broadcasts a service-generated annotation. The
// triggering mutation is already durable, so a failure here is logged, not raised.
func (s *Session) appendChatLocked(ctx context.Context, kind models.ChatKind, body string) {
	ev := models.ChatEvent{
		RoomID:    s.roomID,
		Author:    models.SystemAuthor,
		Kind:      kind,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendChat(ctx, &ev); err != nil {
		s.logger.Warnf("room %s: appending %s chat failed: %v", s.roomID, kind, err)
		return
	}
	s.registry.Broadcast(s.roomID, Event{Type: EventChatMessage, Chat: &ev})
}

// SubmitMove validates and applies one move from a seated player.
func (s *Session) SubmitMove(ctx context.Context, actor Actor, uci string) (models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return models.GameState{}, err
	}
	turn, err := rules.Turn(s.game.Position)
	if err != nil {
		return models.GameState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	seatColor, seated := s.game.SeatOf(actor.UserID)
	if !seated || string(seatColor) != turn {
		return models.GameState{}, ErrNotYourTurn
	}
	return s.applyMoveLocked(ctx, actor, seatColor, uci, EventMoveMade)
}

// RequestAIMove asks the engine seat to move in an AI game. The engine plays black;
// any misuse (wrong game type, wrong turn, requester not seated) is rejected the
// same way.
func (s *Session) RequestAIMove(ctx context.Context, actor Actor) (models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game.Type != models.TypeAI {
		return models.GameState{}, fmt.Errorf("%w: not an AI game", ErrNotAITurn)
	}
	if err := s.requireActiveLocked(); err != nil {
		return models.GameState{}, err
	}
	if _, seated := s.game.SeatOf(actor.UserID); !seated {
		return models.GameState{}, fmt.Errorf("%w: requester is not seated", ErrNotAITurn)
	}
	turn, err := rules.Turn(s.game.Position)
	if err != nil {
		return models.GameState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if turn != string(models.Black) {
		return models.GameState{}, ErrNotAITurn
	}

	uci, err := s.PickMove(s.game.Position)
	if err != nil {
		return models.GameState{}, fmt.Errorf("engine move generation: %w", err)
	}
	engine := Actor{UserID: uuid.Nil, Username: EngineUsername}
	return s.applyMoveLocked(ctx, engine, models.Black, uci, EventAIMoveMade)
}

func (s *Session) applyMoveLocked(ctx context.Context, mover Actor, color models.Color, uci string, eventType string) (models.GameState, error) {
	res, err := rules.ApplyMove(s.game.Position, uci)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return models.GameState{}, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
		}
		return models.GameState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	g := s.game.Clone()
	now := time.Now()
	g.Moves = append(g.Moves, models.Move{UCI: res.UCI, SAN: res.SAN, Color: color, PlayedAt: now})
	g.Position = res.FEN
	g.DrawOfferBy = "" // any move voids a standing offer

	var conclusion string
	switch {
	case res.IsCheckmate:
		g.Status = models.StatusFinished
		g.Winner = string(color)
		conclusion = fmt.Sprintf("Checkmate. %s wins.", titleColor(color))
	case res.IsAutoDraw:
		g.Status = models.StatusFinished
		g.Winner = "draw"
		if res.IsStalemate {
			conclusion = "Stalemate. The game is a draw."
		} else {
			conclusion = fmt.Sprintf("Draw by %s.", res.Method)
		}
	}

	if err := s.commitLocked(ctx, g); err != nil {
		return models.GameState{}, err
	}

	if err := s.journal.PublishMove(ctx, cache.MoveRecord{
		RoomID:    s.roomID,
		Ply:       len(g.Moves),
		UserID:    mover.UserID,
		Color:     string(color),
		UCI:       res.UCI,
		SAN:       res.SAN,
		FEN:       res.FEN,
		Timestamp: now.Unix(),
	}); err != nil {
		s.logger.Warnf("room %s: journaling move %s failed: %v", s.roomID, res.UCI, err)
	}

	st := s.stateLocked()
	s.registry.Broadcast(s.roomID, Event{Type: eventType, State: &st})
	if conclusion != "" {
		s.appendChatLocked(ctx, models.ChatKindGameEvent, conclusion)
	}
	return st, nil
}

// Resign forfeits the game for the requesting seat.
func (s *Session) Resign(ctx context.Context, actor Actor) (models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return models.GameState{}, err
	}
	seatColor, seated := s.game.SeatOf(actor.UserID)
	if !seated {
		return models.GameState{}, fmt.Errorf("%w: not a participant", ErrNotYourTurn)
	}

	g := s.game.Clone()
	g.Status = models.StatusFinished
	g.Winner = string(seatColor.Other())
	g.DrawOfferBy = ""
	if err := s.commitLocked(ctx, g); err != nil {
		return models.GameState{}, err
	}

	st := s.stateLocked()
	s.registry.Broadcast(s.roomID, Event{Type: EventGameState, State: &st})
	s.appendChatLocked(ctx, models.ChatKindSystem,
		fmt.Sprintf("%s resigned. %s wins.", actor.Username, titleColor(seatColor.Other())))
	return st, nil
}

// OfferDraw records a standing draw offer from the requesting seat.
func (s *Session) OfferDraw(ctx context.Context, actor Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	seatColor, seated := s.game.SeatOf(actor.UserID)
	if !seated {
		return fmt.Errorf("%w: not a participant", ErrNotYourTurn)
	}
	if s.game.DrawOfferBy != "" {
		return fmt.Errorf("%w: a draw offer is already pending", ErrConflict)
	}

	g := s.game.Clone()
	g.DrawOfferBy = seatColor
	if err := s.commitLocked(ctx, g); err != nil {
		return err
	}

	s.registry.Broadcast(s.roomID, Event{Type: EventDrawOffer, Color: seatColor, Username: actor.Username})
	return nil
}

// AcceptDraw concludes the game as a draw; only the seat opposite the offer may
// accept.
func (s *Session) AcceptDraw(ctx context.Context, actor Actor) (models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return models.GameState{}, err
	}
	seatColor, seated := s.game.SeatOf(actor.UserID)
	if !seated {
		return models.GameState{}, fmt.Errorf("%w: not a participant", ErrNotYourTurn)
	}
	if s.game.DrawOfferBy == "" || s.game.DrawOfferBy == seatColor {
		return models.GameState{}, ErrNoPendingOffer
	}

	g := s.game.Clone()
	g.Status = models.StatusFinished
	g.Winner = "draw"
	g.DrawOfferBy = ""
	if err := s.commitLocked(ctx, g); err != nil {
		return models.GameState{}, err
	}

	st := s.stateLocked()
	s.registry.Broadcast(s.roomID, Event{Type: EventGameState, State: &st})
	s.appendChatLocked(ctx, models.ChatKindSystem, "Draw agreed.")
	return st, nil
}

// DeclineDraw clears a pending offer from the opposite seat.
func (s *Session) DeclineDraw(ctx context.Context, actor Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	seatColor, seated := s.game.SeatOf(actor.UserID)
	if !seated {
		return fmt.Errorf("%w: not a participant", ErrNotYourTurn)
	}
	offeredBy := s.game.DrawOfferBy
	if offeredBy == "" || offeredBy == seatColor {
		return ErrNoPendingOffer
	}

	g := s.game.Clone()
	g.DrawOfferBy = ""
	if err := s.commitLocked(ctx, g); err != nil {
		return err
	}

	s.registry.Broadcast(s.roomID, Event{Type: EventDrawOfferDeclined, Color: offeredBy, Username: actor.Username})
	return nil
}

// Chat appends a player message and broadcasts it. Chat carries no state-machine
// precondition; spectators in finished rooms can still talk.
func (s *Session) Chat(ctx context.Context, actor Actor, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("%w: empty chat body", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev := models.ChatEvent{
		RoomID:    s.roomID,
		Author:    actor.Username,
		Kind:      models.ChatKindChat,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendChat(ctx, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.registry.Broadcast(s.roomID, Event{Type: EventChatMessage, Chat: &ev})
	return nil
}

// Join seats the actor in an open slot. Filling the second seat starts the game.
// Re-joining a seat the actor already holds is idempotent.
func (s *Session) Join(ctx context.Context, actor Actor, password string) (models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.game
	if g.Status == models.StatusFinished {
		return models.GameState{}, ErrGameFinished
	}
	if _, already := g.SeatOf(actor.UserID); already {
		return s.stateLocked(), nil
	}
	if g.Visibility == models.VisibilityPrivate {
		ok, err := auth.VerifyRoomPassword(password, g.PasswordHash)
		if err != nil || !ok {
			return models.GameState{}, fmt.Errorf("%w: wrong room password", ErrAuthorization)
		}
	}
	if g.Type == models.TypeAI {
		return models.GameState{}, fmt.Errorf("%w: the engine holds the second seat", ErrConflict)
	}
	if g.BothSeated() {
		return models.GameState{}, ErrConflict
	}

	next := g.Clone()
	seat := &models.Seat{UserID: actor.UserID, Username: actor.Username}
	if next.White == nil {
		next.White = seat
	} else {
		next.Black = seat
	}
	started := next.BothSeated()
	if started {
		next.Status = models.StatusActive
	}
	if err := s.commitLocked(ctx, next); err != nil {
		return models.GameState{}, err
	}

	st := s.stateLocked()
	s.registry.Broadcast(s.roomID, Event{Type: EventGameState, State: &st})
	if started {
		s.appendChatLocked(ctx, models.ChatKindSystem,
			fmt.Sprintf("Game on: %s (white) vs %s (black).", next.White.Username, next.Black.Username))
	}
	return st, nil
}

// Subscribe registers a connection for the room's events and replies to it alone
// with the current state and recent chat. Other subscribers get a presence notice.
// Subscribing never mutates game state; spectators use exactly this path.
func (s *Session) Subscribe(ctx context.Context, c *Client) {
	s.registry.Bind(c)

	s.mu.Lock()
	st := s.stateLocked()
	s.mu.Unlock()

	history, err := s.store.LoadChatHistory(ctx, s.roomID, DefaultChatHistoryLimit)
	if err != nil {
		s.logger.Warnf("room %s: loading chat history failed: %v", s.roomID, err)
		history = nil
	}

	c.Send(Event{Type: EventGameState, State: &st})
	c.Send(Event{Type: EventChatHistory, History: history})
	s.registry.BroadcastExcept(s.roomID, c.ConnID,
		Event{Type: EventPlayerJoined, UserID: c.UserID.String(), Username: c.Username})
}

// Unsubscribe drops the connection's binding. Disconnection is presence-only; it
// never resigns or otherwise mutates the game.
func (s *Session) Unsubscribe(connID uuid.UUID) {
	c := s.registry.Unbind(connID)
	if c == nil {
		return
	}
	s.registry.Broadcast(s.roomID,
		Event{Type: EventPlayerDisconnected, UserID: c.UserID.String(), Username: c.Username})
}

func titleColor(c models.Color) string {
	if c == models.White {
		return "White"
	}
	return "Black"
}
