// Package cache publishes accepted moves to a Redis list so downstream consumers
// (replay tooling, analysis) can drain them without touching the games table.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list moves are pushed onto unless
// MOVE_QUEUE_NAME overrides it.
const DefaultQueueName = "chessd_moves"

// MoveRecord is the journal entry for one accepted ply.
type MoveRecord struct {
	RoomID    string    `json:"room_id"`
	Ply       int       `json:"ply"`
	UserID    uuid.UUID `json:"user_id"`
	Color     string    `json:"color"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FEN       string    `json:"fen"`
	Timestamp int64     `json:"timestamp"`
}

// Journal wraps the Redis client. A nil Journal is valid and drops every publish,
// so the session code never has to branch on whether Redis is configured.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// NewJournal connects to Redis at addr and pings it.
func NewJournal(addr string, db int) (*Journal, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	queue := os.Getenv("MOVE_QUEUE_NAME")
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Journal{rdb: rdb, queue: queue}, nil
}

// PublishMove serializes the record and pushes it onto the queue.
func (j *Journal) PublishMove(ctx context.Context, rec MoveRecord) error {
	if j == nil || j.rdb == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal move record: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", j.queue, err)
	}
	return nil
}

// Close releases the Redis connection.
func (j *Journal) Close() error {
	if j == nil || j.rdb == nil {
		return nil
	}
	return j.rdb.Close()
}
