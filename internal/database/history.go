// Package database records finished rounds in Postgres.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoundRecord summarises one finished round.
type RoundRecord struct {
	GameID     string    `json:"gameId"`
	Winner     string    `json:"winner,omitempty"`
	Players    []string  `json:"players"`
	Score      int       `json:"score"`
	FinishedAt time.Time `json:"finishedAt"`
}

// querier is the subset of pgxpool.Pool used by History.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// History stores round records.
type History struct {
	db querier
}

// Connect opens a pool for url and checks the server answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewHistory returns a History writing through pool.
func NewHistory(pool *pgxpool.Pool) *History {
	return &History{db: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	id          BIGSERIAL PRIMARY KEY,
	game_id     TEXT        NOT NULL,
	winner      TEXT        NOT NULL DEFAULT '',
	players     JSONB       NOT NULL,
	score       INTEGER     NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rounds_game_id_idx ON rounds (game_id, finished_at DESC);
`

// Migrate creates the rounds table if it does not exist.
func (h *History) Migrate(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate rounds: %w", err)
	}
	return nil
}

// RecordRound inserts rec.
func (h *History) RecordRound(ctx context.Context, rec RoundRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	_, err = h.db.Exec(ctx,
		`INSERT INTO rounds (game_id, winner, players, score, finished_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.GameID, rec.Winner, players, rec.Score, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record round of %s: %w", rec.GameID, err)
	}
	return nil
}

// RecentRounds returns up to limit rounds of gameID, newest first.
func (h *History) RecentRounds(ctx context.Context, gameID string, limit int) ([]RoundRecord, error) {
	rows, err := h.db.Query(ctx,
		`SELECT game_id, winner, players, score, finished_at FROM rounds
		 WHERE game_id = $1 ORDER BY finished_at DESC LIMIT $2`,
		gameID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query rounds of %s: %w", gameID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoundRecord, error) {
		var (
			rec     RoundRecord
			players []byte
		)
		if err := row.Scan(&rec.GameID, &rec.Winner, &players, &rec.Score, &rec.FinishedAt); err != nil {
			return rec, err
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return rec, fmt.Errorf("decode players: %w", err)
		}
		return rec, nil
	})
}
