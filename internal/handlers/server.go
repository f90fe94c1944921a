// Package handlers exposes the lobby HTTP API and the per-room websocket endpoint.
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/chessd/internal/game"
	"github.com/knightwatch/chessd/internal/lobby"
)

// Server bundles the collaborators every handler needs.
type Server struct {
	Lobby    *lobby.Coordinator
	Sessions *game.SessionStore
	Registry *game.Registry
	Logger   *logrus.Logger
}

// NewServer wires the handler layer.
func NewServer(l *lobby.Coordinator, sessions *game.SessionStore, registry *game.Registry, logger *logrus.Logger) *Server {
	return &Server{Lobby: l, Sessions: sessions, Registry: registry, Logger: logger}
}
