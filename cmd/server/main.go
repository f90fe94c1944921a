// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/chessd/internal/auth"
	"github.com/knightwatch/chessd/internal/cache"
	"github.com/knightwatch/chessd/internal/database"
	"github.com/knightwatch/chessd/internal/game"
	"github.com/knightwatch/chessd/internal/handlers"
	"github.com/knightwatch/chessd/internal/lobby"
	"github.com/knightwatch/chessd/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := auth.Init(); err != nil {
		logger.Fatalf("initializing signing keys: %v", err)
	}

	ctx := context.Background()
	store, err := database.Connect(ctx)
	if err != nil {
		logger.Fatalf("connecting to postgres: %v", err)
	}
	defer store.Close()

	// The move journal is optional; without REDIS_ADDR moves are only persisted.
	var journal *cache.Journal
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				db = n
			}
		}
		journal, err = cache.NewJournal(addr, db)
		if err != nil {
			logger.Fatalf("connecting to redis: %v", err)
		}
		defer journal.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, move journaling disabled")
	}

	registry := game.NewRegistry()
	sessions := game.NewSessionStore(store, registry, journal, logger)
	coordinator := lobby.NewCoordinator(store, sessions, logger)
	srv := handlers.NewServer(coordinator, sessions, registry, logger)

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("/lobby/create", logged(srv.CreateGameHandler()))
	mux.Handle("/lobby/join", logged(srv.JoinGameHandler()))
	mux.Handle("/lobby/list", logged(srv.ListGamesHandler()))
	mux.Handle("/lobby/mine", logged(srv.MyGamesHandler()))
	mux.Handle("/game/ws/", logged(srv.GameWSHandler()))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
