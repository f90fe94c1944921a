package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/knightwatch/chessd/internal/game"
	"github.com/knightwatch/chessd/internal/middleware"
)

// ClientMessage is the envelope for everything a client sends over the room socket.
type ClientMessage struct {
	Type     string `json:"type"`
	Move     string `json:"move,omitempty"`     // UCI, for submit-move
	Body     string `json:"body,omitempty"`     // chat text
	Password string `json:"password,omitempty"` // private room join
}

// outboundBuffer bounds the per-connection send queue. A client that cannot drain
// this many events is dropped rather than allowed to stall the room.
const outboundBuffer = 64

// GameWSHandler upgrades the connection for /game/ws/{roomID}, resolves the
// requester's identity, subscribes the connection to the room and runs the read
// loop until the client disconnects.
func (s *Server) GameWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.TrimPrefix(r.URL.Path, "/game/ws/")
		if roomID == "" || strings.Contains(roomID, "/") {
			http.Error(w, "missing room id in path (/game/ws/{roomID})", http.StatusBadRequest)
			return
		}

		actor, err := EnsureIdentity(w, r)
		if err != nil {
			s.Logger.Warnf("identity resolution failed for room %s: %v", roomID, err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		sess, err := s.Sessions.GetOrLoad(r.Context(), roomID)
		if errors.Is(err, game.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.Logger.Errorf("loading room %s failed: %v", roomID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"chess"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			s.Logger.Warnf("websocket accept failed for room %s: %v", roomID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "chess" {
			c.Close(websocket.StatusCode(BadSubprotocolError), "client must use the 'chess' subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		connID := uuid.New()
		out := make(chan game.Event, outboundBuffer)
		send := func(ev game.Event) {
			select {
			case out <- ev:
			default:
				s.Logger.Warnf("conn %s in room %s cannot keep up, dropping %s", connID, roomID, ev.Type)
			}
		}
		go s.writePump(ctx, c, connID, out)

		client := &game.Client{
			ConnID:   connID,
			UserID:   actor.UserID,
			Username: actor.Username,
			RoomID:   roomID,
			Send:     send,
		}
		sess.Subscribe(ctx, client)
		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, roomID, actor.Username)

		s.readLoop(ctx, c, sess, actor, send)

		sess.Unsubscribe(connID)
		s.Sessions.Evict(roomID)
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, roomID, actor.Username)
	}
}

// writePump serializes all writes for one connection. Session broadcasts hand off
// through the buffered channel, so no room ever blocks on a slow socket.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, connID uuid.UUID, out <-chan game.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			data, err := json.Marshal(ev)
			if err != nil {
				s.Logger.Errorf("conn %s: marshaling %s event: %v", connID, ev.Type, err)
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client messages until the socket closes or the context ends.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, sess *game.Session, actor game.Actor, send game.SendFunc) {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			send(game.Event{Type: game.EventError, Message: "malformed message"})
			continue
		}
		s.dispatch(ctx, sess, actor, msg, send)
	}
}

// dispatch routes one client message into the session. Failures are reported only
// to the requesting connection.
func (s *Server) dispatch(ctx context.Context, sess *game.Session, actor game.Actor, msg ClientMessage, send game.SendFunc) {
	var err error
	switch msg.Type {
	case "submit-move":
		_, err = sess.SubmitMove(ctx, actor, msg.Move)
	case "request-ai-move":
		_, err = sess.RequestAIMove(ctx, actor)
	case "resign":
		_, err = sess.Resign(ctx, actor)
	case "offer-draw":
		err = sess.OfferDraw(ctx, actor)
	case "accept-draw":
		_, err = sess.AcceptDraw(ctx, actor)
	case "decline-draw":
		err = sess.DeclineDraw(ctx, actor)
	case "chat":
		err = sess.Chat(ctx, actor, msg.Body)
	case "ping":
		send(game.Event{Type: game.EventPong})
	default:
		send(game.Event{Type: game.EventError, Message: "unknown message type " + msg.Type})
	}
	if err != nil {
		send(game.Event{Type: game.EventError, Message: err.Error()})
	}
}
