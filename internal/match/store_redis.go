package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	gameKeyPrefix = "arena:game:"
	recentKey     = "arena:recent"
	recentMax     = 100
)

// Store keeps finished-game records in redis with a TTL, plus a capped
// list of recent game ids for quick lookup.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func gameKey(id string) string { return gameKeyPrefix + id }

func (s *Store) Save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game %s: %w", rec.ID, err)
	}
	if err := s.rdb.Set(ctx, gameKey(rec.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, recentKey, rec.ID)
	pipe.LTrim(ctx, recentKey, 0, recentMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index game %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns nil without error when the record is missing or expired.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &rec, nil
}

// Recent lists up to n most recently saved game ids, newest first.
func (s *Store) Recent(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 || n > recentMax {
		n = recentMax
	}
	ids, err := s.rdb.LRange(ctx, recentKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent games: %w", err)
	}
	return ids, nil
}
