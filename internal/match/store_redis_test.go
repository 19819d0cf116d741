package match

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kapu/enginearena/internal/board"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour), mr
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		ID:          "game-1",
		Variant:     "crazyhouse",
		White:       "alpha",
		Black:       "beta",
		MovesUCI:    []string{"e2e4", "e7e5", "N@f3"},
		Result:      board.ResultWhiteWins,
		Termination: "checkmate",
		Plies:       3,
	}
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.Load(ctx, "game-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("load returned nil for saved game")
	}
	if got.Result != rec.Result || got.Termination != rec.Termination {
		t.Fatalf("loaded record = %+v", got)
	}
	if len(got.MovesUCI) != 3 || got.MovesUCI[2] != "N@f3" {
		t.Fatalf("moves = %v", got.MovesUCI)
	}
	if ttl := mr.TTL(gameKey("game-1")); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestStoreLoadMissingIsNil(t *testing.T) {
	st, _ := newTestStore(t)
	got, err := st.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if got != nil {
		t.Fatalf("load missing = %+v, want nil", got)
	}
}

func TestStoreRecentNewestFirst(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		if err := st.Save(ctx, &Record{ID: id, Result: board.ResultDraw}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	ids, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(ids) != 2 || ids[0] != "g3" || ids[1] != "g2" {
		t.Fatalf("recent = %v", ids)
	}
}
