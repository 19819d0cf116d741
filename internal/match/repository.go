package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository is the durable Postgres archive for finished games. The
// redis Store is the hot cache; this keeps everything.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS arena_games (
        game_id      TEXT PRIMARY KEY,
        variant      TEXT NOT NULL,
        white_name   TEXT NOT NULL,
        black_name   TEXT NOT NULL,
        result       TEXT NOT NULL,
        termination  TEXT NOT NULL,
        moves_uci    JSONB NOT NULL,
        plies        INT NOT NULL,
        started_at   TIMESTAMPTZ NOT NULL,
        ended_at     TIMESTAMPTZ NOT NULL
      )`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Archive upserts one finished game.
func (r *Repository) Archive(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	movesRaw, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	q := `INSERT INTO arena_games (
        game_id, variant, white_name, black_name,
        result, termination, moves_uci, plies, started_at, ended_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
      ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        termination=EXCLUDED.termination,
        moves_uci=EXCLUDED.moves_uci,
        plies=EXCLUDED.plies,
        ended_at=EXCLUDED.ended_at`
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.Variant, rec.White, rec.Black,
		rec.Result, rec.Termination, movesRaw, rec.Plies,
		rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("archive game %s: %w", rec.ID, err)
	}
	return nil
}

// Game loads one archived record; nil without error when absent.
func (r *Repository) Game(ctx context.Context, id string) (*Record, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	q := `SELECT game_id, variant, white_name, black_name,
               result, termination, moves_uci, plies, started_at, ended_at
          FROM arena_games WHERE game_id = $1`
	var rec Record
	var movesRaw []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.Variant, &rec.White, &rec.Black,
		&rec.Result, &rec.Termination, &movesRaw, &rec.Plies,
		&rec.StartedAt, &rec.EndedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	if err := json.Unmarshal(movesRaw, &rec.MovesUCI); err != nil {
		return nil, fmt.Errorf("decode moves for %s: %w", id, err)
	}
	return &rec, nil
}
