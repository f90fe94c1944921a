// cmd/historian is an asynchronous archiver that pops move records from the Redis
// journal queue and persists them to the move_log table in batches.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/chessd/internal/cache"
	"github.com/knightwatch/chessd/internal/database"
)

// historian encapsulates the Redis and DB ends of the archive pipeline.
type historian struct {
	redisClient *redis.Client
	store       *database.Postgres
	logger      *logrus.Logger
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu sync.Mutex
	batch   []cache.MoveRecord
}

func newHistorian(logger *logrus.Logger) *historian {
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	return &historian{
		redisClient: redis.NewClient(&redis.Options{Addr: redisAddr}),
		logger:      logger,
		queueName:   getEnv("MOVE_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		flushDelay:  time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}
}

// run consumes the queue until the context ends, flushing the batch on size or on
// the flush ticker, whichever fires first.
func (h *historian) run(ctx context.Context) {
	ticker := time.NewTicker(h.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.flush(context.Background())
			return

		case <-ticker.C:
			h.flush(ctx)

		default:
			// BLPop with a short timeout so cancellation is noticed promptly.
			res, err := h.redisClient.BLPop(ctx, 3*time.Second, h.queueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				h.logger.Errorf("blpop %s: %v", h.queueName, err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec cache.MoveRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				h.logger.Warnf("dropping malformed journal record: %v", err)
				continue
			}
			h.append(ctx, rec)
		}
	}
}

func (h *historian) append(ctx context.Context, rec cache.MoveRecord) {
	h.batchMu.Lock()
	h.batch = append(h.batch, rec)
	full := len(h.batch) >= h.batchSize
	h.batchMu.Unlock()
	if full {
		h.flush(ctx)
	}
}

// flush writes the pending batch in one transaction. On failure the records are
// requeued in memory and retried on the next tick.
func (h *historian) flush(ctx context.Context) {
	h.batchMu.Lock()
	if len(h.batch) == 0 {
		h.batchMu.Unlock()
		return
	}
	pending := h.batch
	h.batch = nil
	h.batchMu.Unlock()

	if err := h.store.ArchiveMoves(ctx, pending); err != nil {
		h.logger.Errorf("flush of %d records failed: %v", len(pending), err)
		h.batchMu.Lock()
		h.batch = append(pending, h.batch...)
		h.batchMu.Unlock()
		return
	}
	h.logger.Debugf("archived %d moves", len(pending))
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.Connect(ctx)
	if err != nil {
		logger.Fatalf("connecting to postgres: %v", err)
	}
	defer store.Close()

	h := newHistorian(logger)
	h.store = store
	go h.run(ctx)
	logger.Infof("historian consuming %s", h.queueName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	cancel()
	logger.Info("historian shutdown complete")
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
