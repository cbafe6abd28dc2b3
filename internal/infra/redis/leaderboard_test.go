package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLeaderboardRanksByXP(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lb := NewLeaderboard(client)
	ctx := context.Background()

	for user, xp := range map[string]int{"alice": 1200, "bob": 300, "carol": 300, "dave": 50} {
		if err := lb.Record(ctx, user, xp); err != nil {
			t.Fatalf("record %s: %v", user, err)
		}
	}
	_ = lb.Record(ctx, "dave", 2000)

	top, err := lb.Top(ctx, 4)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 4 {
		t.Fatalf("expected 4 entries, got %+v", top)
	}
	if top[0].UserID != "dave" || top[0].CumulativeXP != 2000 || top[1].UserID != "alice" || top[2].UserID != "bob" || top[3].UserID != "carol" {
		t.Fatalf("unexpected ranking %+v", top)
	}
	if !mr.Exists(leaderboardKey) {
		t.Fatalf("expected sorted set key to exist")
	}
}

func TestLeaderboardTieAtLimitOrdersByUserID(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	lb := NewLeaderboard(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	for user, xp := range map[string]int{"bob": 100, "alice": 100, "carol": 100, "zed": 500} {
		if err := lb.Record(ctx, user, xp); err != nil {
			t.Fatalf("record %s: %v", user, err)
		}
	}

	top, err := lb.Top(ctx, 1)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "zed" {
		t.Fatalf("unexpected top 1 %+v", top)
	}

	top, err = lb.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[1].UserID != "alice" || top[1].CumulativeXP != 100 {
		t.Fatalf("expected alice to win the tie at the limit, got %+v", top)
	}

	top, err = lb.Top(ctx, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 || top[1].UserID != "alice" || top[2].UserID != "bob" {
		t.Fatalf("expected ties ordered by user id, got %+v", top)
	}
}
