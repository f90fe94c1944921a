package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightwatch/chessd/internal/auth"
	"github.com/knightwatch/chessd/internal/database"
	"github.com/knightwatch/chessd/internal/models"
	"github.com/knightwatch/chessd/internal/rules"
)

var (
	alice = Actor{UserID: uuid.New(), Username: "alice"}
	bob   = Actor{UserID: uuid.New(), Username: "bob"}
	carol = Actor{UserID: uuid.New(), Username: "carol"}
)

// recorder collects everything sent to one fake connection.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) send(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) countType(t string) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func activeTwoSeatGame(roomID string) *models.Game {
	now := time.Now()
	return &models.Game{
		RoomID:     roomID,
		White:      &models.Seat{UserID: alice.UserID, Username: alice.Username},
		Black:      &models.Seat{UserID: bob.UserID, Username: bob.Username},
		Status:     models.StatusActive,
		Type:       models.TypeMultiplayer,
		Visibility: models.VisibilityPublic,
		Position:   rules.StartingFEN,
		Moves:      []models.Move{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// setupSession returns a live session over a memory store with one recorder
// subscribed to the room.
func setupSession(t *testing.T, g *models.Game) (*Session, *database.MemoryStore, *recorder) {
	t.Helper()
	store := database.NewMemoryStore()
	require.NoError(t, store.SaveGame(context.Background(), g))

	registry := NewRegistry()
	sess := NewSession(g, store, registry, nil, testLogger())

	rec := &recorder{}
	registry.Bind(&Client{
		ConnID:   uuid.New(),
		UserID:   carol.UserID,
		Username: carol.Username,
		RoomID:   g.RoomID,
		Send:     rec.send,
	})
	return sess, store, rec
}

func TestTurnAlternation(t *testing.T) {
	sess, _, _ := setupSession(t, activeTwoSeatGame("room-turns"))
	ctx := context.Background()

	st, err := sess.SubmitMove(ctx, alice, "e2e4")
	require.NoError(t, err)
	assert.Equal(t, models.Black, st.Turn)

	st, err = sess.SubmitMove(ctx, bob, "e7e5")
	require.NoError(t, err)
	assert.Equal(t, models.White, st.Turn)

	st, err = sess.SubmitMove(ctx, alice, "g1f3")
	require.NoError(t, err)
	assert.Equal(t, models.Black, st.Turn)
	assert.Len(t, st.Moves, 3)
}

func TestMoveOutOfTurnRejected(t *testing.T) {
	sess, _, rec := setupSession(t, activeTwoSeatGame("room-oot"))
	ctx := context.Background()

	// Black tries to move first.
	_, err := sess.SubmitMove(ctx, bob, "e7e5")
	require.ErrorIs(t, err, ErrNotYourTurn)

	// A spectator is never a legal actor.
	_, err = sess.SubmitMove(ctx, carol, "e2e4")
	require.ErrorIs(t, err, ErrNotYourTurn)

	assert.Zero(t, rec.countType(EventMoveMade), "rejected moves must not broadcast")
}

func TestIllegalMoveRejected(t *testing.T) {
	sess, store, rec := setupSession(t, activeTwoSeatGame("room-illegal"))
	ctx := context.Background()

	_, err := sess.SubmitMove(ctx, alice, "e2e5")
	require.ErrorIs(t, err, ErrIllegalMove)
	assert.Zero(t, rec.countType(EventMoveMade))

	// Nothing was persisted for the rejected move.
	g, err := store.LoadGame(ctx, "room-illegal")
	require.NoError(t, err)
	assert.Empty(t, g.Moves)
	assert.Equal(t, rules.StartingFEN, g.Position)
}

func TestSeatConflictOnJoin(t *testing.T) {
	sess, _, _ := setupSession(t, activeTwoSeatGame("room-full"))

	_, err := sess.Join(context.Background(), carol, "")
	require.ErrorIs(t, err, ErrConflict)

	// A seated player re-joining is idempotent, never a third seat.
	st, err := sess.Join(context.Background(), alice, "")
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, st.White.UserID)
	assert.Equal(t, bob.UserID, st.Black.UserID)
}

func TestPrivateJoinPassword(t *testing.T) {
	g := activeTwoSeatGame("room-private")
	g.Black = nil
	g.Status = models.StatusWaiting
	g.Visibility = models.VisibilityPrivate
	hash, err := auth.HashRoomPassword("open sesame")
	require.NoError(t, err)
	g.PasswordHash = hash

	sess, _, _ := setupSession(t, g)
	ctx := context.Background()

	_, err = sess.Join(ctx, bob, "wrong")
	require.ErrorIs(t, err, ErrAuthorization)

	st, err := sess.Join(ctx, bob, "open sesame")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, st.Status)
}

func TestJoinStartsGameAndAnnounces(t *testing.T) {
	g := activeTwoSeatGame("room-start")
	g.Black = nil
	g.Status = models.StatusWaiting

	sess, store, rec := setupSession(t, g)
	ctx := context.Background()

	// No legal actor yet: moves are rejected while waiting.
	_, err := sess.SubmitMove(ctx, alice, "e2e4")
	require.ErrorIs(t, err, ErrInvalidState)

	st, err := sess.Join(ctx, bob, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, st.Status)

	history, err := store.LoadChatHistory(ctx, "room-start", DefaultChatHistoryLimit)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, models.ChatKindSystem, last.Kind)
	assert.Contains(t, last.Body, "Game on")
	assert.Equal(t, 1, rec.countType(EventGameState))
}

func TestNoActionAfterFinish(t *testing.T) {
	sess, _, rec := setupSession(t, activeTwoSeatGame("room-finished"))
	ctx := context.Background()

	_, err := sess.Resign(ctx, bob)
	require.NoError(t, err)

	broadcastsAfterFinish := len(rec.all())

	_, err = sess.SubmitMove(ctx, alice, "e2e4")
	require.ErrorIs(t, err, ErrGameFinished)
	_, err = sess.Resign(ctx, alice)
	require.ErrorIs(t, err, ErrGameFinished)
	err = sess.OfferDraw(ctx, alice)
	require.ErrorIs(t, err, ErrGameFinished)
	_, err = sess.Join(ctx, carol, "")
	require.ErrorIs(t, err, ErrGameFinished)

	assert.Len(t, rec.all(), broadcastsAfterFinish, "rejected actions must not broadcast")
}

func TestDrawOfferExclusivity(t *testing.T) {
	sess, _, rec := setupSession(t, activeTwoSeatGame("room-offer"))
	ctx := context.Background()

	require.NoError(t, sess.OfferDraw(ctx, alice))
	err := sess.OfferDraw(ctx, alice)
	require.ErrorIs(t, err, ErrConflict)

	st := sess.Snapshot()
	assert.Equal(t, models.White, st.DrawOfferBy)
	assert.Equal(t, 1, rec.countType(EventDrawOffer))
}

func TestDrawOfferClearedByMove(t *testing.T) {
	sess, _, _ := setupSession(t, activeTwoSeatGame("room-offer-move"))
	ctx := context.Background()

	require.NoError(t, sess.OfferDraw(ctx, alice))
	st, err := sess.SubmitMove(ctx, alice, "e2e4")
	require.NoError(t, err)
	assert.Empty(t, st.DrawOfferBy)

	// The cleared offer can be made again.
	require.NoError(t, sess.OfferDraw(ctx, alice))
}

func TestDrawAcceptAndDecline(t *testing.T) {
	sess, _, rec := setupSession(t, activeTwoSeatGame("room-draw"))
	ctx := context.Background()

	// Nothing pending yet.
	err := sess.DeclineDraw(ctx, bob)
	require.ErrorIs(t, err, ErrNoPendingOffer)
	_, err = sess.AcceptDraw(ctx, bob)
	require.ErrorIs(t, err, ErrNoPendingOffer)

	require.NoError(t, sess.OfferDraw(ctx, alice))

	// The offerer cannot answer their own offer.
	_, err = sess.AcceptDraw(ctx, alice)
	require.ErrorIs(t, err, ErrNoPendingOffer)

	require.NoError(t, sess.DeclineDraw(ctx, bob))
	assert.Equal(t, 1, rec.countType(EventDrawOfferDeclined))
	assert.Empty(t, sess.Snapshot().DrawOfferBy)

	// Offer again, accept this time.
	require.NoError(t, sess.OfferDraw(ctx, alice))
	st, err := sess.AcceptDraw(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, st.Status)
	assert.Equal(t, "draw", st.Winner)
	assert.Empty(t, st.DrawOfferBy)
}

func TestResignation(t *testing.T) {
	sess, store, _ := setupSession(t, activeTwoSeatGame("room-resign"))
	ctx := context.Background()

	st, err := sess.Resign(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, st.Status)
	assert.Equal(t, string(models.White), st.Winner)

	history, err := store.LoadChatHistory(ctx, "room-resign", DefaultChatHistoryLimit)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, models.ChatKindSystem, last.Kind)
	assert.Contains(t, last.Body, "bob resigned")

	_, err = sess.Resign(ctx, carol)
	require.ErrorIs(t, err, ErrGameFinished)
}

func TestResignRequiresSeat(t *testing.T) {
	sess, _, _ := setupSession(t, activeTwoSeatGame("room-resign-outsider"))
	_, err := sess.Resign(context.Background(), carol)
	require.ErrorIs(t, err, ErrNotYourTurn)
}

func TestRaceSerialization(t *testing.T) {
	sess, store, _ := setupSession(t, activeTwoSeatGame("room-race"))
	ctx := context.Background()

	// Two copies of White's move race; only one can apply because after the winner
	// the position and turn have changed.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sess.SubmitMove(ctx, alice, "e2e4")
		}(i)
	}
	wg.Wait()

	accepted, rejected := 0, 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		rejected++
		assert.True(t, errors.Is(err, ErrNotYourTurn) || errors.Is(err, ErrIllegalMove),
			"loser must fail with a turn or legality error, got %v", err)
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)

	g, err := store.LoadGame(ctx, "room-race")
	require.NoError(t, err)
	assert.Len(t, g.Moves, 1)
}

func TestPersistenceBeforeBroadcast(t *testing.T) {
	sess, store, rec := setupSession(t, activeTwoSeatGame("room-storage"))
	ctx := context.Background()

	store.FailSaves = true
	_, err := sess.SubmitMove(ctx, alice, "e2e4")
	require.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, rec.countType(EventMoveMade), "no broadcast without a confirmed save")

	// The live state did not diverge from what is persisted.
	st := sess.Snapshot()
	assert.Equal(t, rules.StartingFEN, st.Position)
	assert.Empty(t, st.Moves)

	// Once storage recovers the same move goes through.
	store.FailSaves = false
	_, err = sess.SubmitMove(ctx, alice, "e2e4")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.countType(EventMoveMade))
}

func TestFoolsMateAgainstEngine(t *testing.T) {
	now := time.Now()
	g := &models.Game{
		RoomID:     "room-ai",
		White:      &models.Seat{UserID: alice.UserID, Username: alice.Username},
		Status:     models.StatusActive,
		Type:       models.TypeAI,
		Visibility: models.VisibilityPublic,
		Position:   rules.StartingFEN,
		Moves:      []models.Move{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	sess, store, rec := setupSession(t, g)
	ctx := context.Background()

	// Script the engine into the fool's mate reply.
	script := []string{"e7e5", "d8h4"}
	sess.PickMove = func(string) (string, error) {
		mv := script[0]
		script = script[1:]
		return mv, nil
	}

	// Requesting an engine move out of turn is rejected.
	_, err := sess.RequestAIMove(ctx, alice)
	require.ErrorIs(t, err, ErrNotAITurn)

	_, err = sess.SubmitMove(ctx, alice, "f2f3")
	require.NoError(t, err)
	_, err = sess.RequestAIMove(ctx, alice)
	require.NoError(t, err)
	_, err = sess.SubmitMove(ctx, alice, "g2g4")
	require.NoError(t, err)
	st, err := sess.RequestAIMove(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFinished, st.Status)
	assert.Equal(t, string(models.Black), st.Winner)
	assert.Len(t, st.Moves, 4)
	assert.Equal(t, "Qh4#", st.Moves[3].SAN)

	assert.Equal(t, 2, rec.countType(EventMoveMade))
	assert.Equal(t, 2, rec.countType(EventAIMoveMade))

	history, err := store.LoadChatHistory(ctx, "room-ai", DefaultChatHistoryLimit)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, models.ChatKindGameEvent, history[len(history)-1].Kind)
	assert.Contains(t, history[len(history)-1].Body, "Checkmate")
}

func TestRequestAIMoveOnMultiplayerGame(t *testing.T) {
	sess, _, _ := setupSession(t, activeTwoSeatGame("room-not-ai"))
	_, err := sess.RequestAIMove(context.Background(), alice)
	require.ErrorIs(t, err, ErrNotAITurn)
}

func TestSpectatorIsolation(t *testing.T) {
	g := activeTwoSeatGame("room-spectate")
	sess, store, _ := setupSession(t, g)
	ctx := context.Background()

	require.NoError(t, sess.Chat(ctx, alice, "good luck"))

	watcher := &recorder{}
	sess.Subscribe(ctx, &Client{
		ConnID:   uuid.New(),
		UserID:   carol.UserID,
		Username: carol.Username,
		RoomID:   g.RoomID,
		Send:     watcher.send,
	})

	events := watcher.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventGameState, events[0].Type)
	assert.Equal(t, EventChatHistory, events[1].Type)
	require.Len(t, events[1].History, 1)
	assert.Equal(t, "good luck", events[1].History[0].Body)

	// Spectators receive state but cannot mutate it.
	_, err := sess.SubmitMove(ctx, carol, "e2e4")
	require.ErrorIs(t, err, ErrNotYourTurn)
	assert.Zero(t, watcher.countType(EventMoveMade))

	loaded, err := store.LoadGame(ctx, g.RoomID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Moves)
}

func TestSubscribeNotifiesOthersNotJoiner(t *testing.T) {
	g := activeTwoSeatGame("room-presence")
	sess, _, existing := setupSession(t, g)

	joiner := &recorder{}
	connID := uuid.New()
	sess.Subscribe(context.Background(), &Client{
		ConnID:   connID,
		UserID:   bob.UserID,
		Username: bob.Username,
		RoomID:   g.RoomID,
		Send:     joiner.send,
	})

	assert.Equal(t, 1, existing.countType(EventPlayerJoined))
	assert.Zero(t, joiner.countType(EventPlayerJoined), "presence notice must not echo to the joiner")

	sess.Unsubscribe(connID)
	assert.Equal(t, 1, existing.countType(EventPlayerDisconnected))

	// Disconnection never mutates game state.
	assert.Equal(t, models.StatusActive, sess.Snapshot().Status)
}

func TestChatPersistsAndBroadcasts(t *testing.T) {
	sess, store, rec := setupSession(t, activeTwoSeatGame("room-chat"))
	ctx := context.Background()

	require.NoError(t, sess.Chat(ctx, alice, "hello"))
	require.NoError(t, sess.Chat(ctx, carol, "spectators can talk too"))

	err := sess.Chat(ctx, alice, "   ")
	require.ErrorIs(t, err, ErrValidation)

	history, err := store.LoadChatHistory(ctx, "room-chat", DefaultChatHistoryLimit)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 2, rec.countType(EventChatMessage))

	store.FailChat = true
	err = sess.Chat(ctx, alice, "lost")
	require.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 2, rec.countType(EventChatMessage))
}

func TestStalemateEndsInDraw(t *testing.T) {
	// Lone black king on a8; Qb1-b6 leaves it unchecked with no legal move.
	g := activeTwoSeatGame("room-stalemate")
	g.Position = "k7/8/8/8/8/8/8/1Q2K3 w - - 0 1"
	sess, _, _ := setupSession(t, g)

	st, err := sess.SubmitMove(context.Background(), alice, "b1b6")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, st.Status)
	assert.Equal(t, "draw", st.Winner)
}
