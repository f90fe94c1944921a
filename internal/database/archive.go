package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/knightwatch/chessd/internal/cache"
)

// ArchiveMoves inserts a batch of journal records into the move_log table in one
// transaction. The table is an append-only per-ply archive, independent of the
// jsonb history on the games row:
//
//	CREATE TABLE move_log (
//	    id        bigserial PRIMARY KEY,
//	    room_id   text NOT NULL,
//	    ply       int NOT NULL,
//	    user_id   uuid,
//	    color     text NOT NULL,
//	    uci       text NOT NULL,
//	    san       text NOT NULL,
//	    fen       text NOT NULL,
//	    played_at timestamptz NOT NULL,
//	    UNIQUE (room_id, ply)
//	);
func (p *Postgres) ArchiveMoves(ctx context.Context, recs []cache.MoveRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO move_log (room_id, ply, user_id, color, uci, san, fen, played_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8))
			ON CONFLICT (room_id, ply) DO NOTHING
		`
		for _, rec := range recs {
			if _, err := tx.Exec(ctx, q,
				rec.RoomID, rec.Ply, rec.UserID, rec.Color, rec.UCI, rec.SAN, rec.FEN, rec.Timestamp,
			); err != nil {
				return fmt.Errorf("insert move_log row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive moves: %w", err)
	}
	return nil
}
