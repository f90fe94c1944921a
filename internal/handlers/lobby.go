package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/knightwatch/chessd/internal/database"
	"github.com/knightwatch/chessd/internal/game"
	"github.com/knightwatch/chessd/internal/lobby"
	"github.com/knightwatch/chessd/internal/models"
)

// writeError maps the domain sentinels onto HTTP statuses. Unrecognized errors
// stay opaque to the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, game.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrConflict), errors.Is(err, game.ErrGameFinished):
		status = http.StatusConflict
	case errors.Is(err, game.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	default:
		s.Logger.Errorf("lobby request failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CreateGameHandler handles POST /lobby/create. The requester is seated as white
// in the new room.
func (s *Server) CreateGameHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := EnsureIdentity(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		var req lobby.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			http.Error(w, "bad create payload", http.StatusBadRequest)
			return
		}

		g, err := s.Lobby.CreateGame(r.Context(), actor, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

type joinRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

// JoinGameHandler handles POST /lobby/join, seating the requester in an open slot.
func (s *Server) JoinGameHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := EnsureIdentity(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad join payload", http.StatusBadRequest)
			return
		}
		if req.RoomID == "" {
			http.Error(w, "missing room_id", http.StatusBadRequest)
			return
		}

		st, err := s.Lobby.JoinGame(r.Context(), actor, req.RoomID, req.Password)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// ListGamesHandler handles GET /lobby/list with optional status and visibility
// query filters.
func (s *Server) ListGamesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := EnsureIdentity(w, r); err != nil {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		f := database.GameFilter{
			Status:     models.GameStatus(r.URL.Query().Get("status")),
			Visibility: models.Visibility(r.URL.Query().Get("visibility")),
		}
		games, err := s.Lobby.ListGames(r.Context(), f)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, games)
	}
}

// MyGamesHandler handles GET /lobby/mine, returning the games where the requester
// holds a seat.
func (s *Server) MyGamesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := EnsureIdentity(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		games, err := s.Lobby.ListUserGames(r.Context(), actor.UserID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, games)
	}
}
