package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"elsa-progression-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "leaderboard:xp"

// Leaderboard ranks users by cumulative XP in a Redis sorted set, so every instance
// serves the same ranking.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) Record(ctx context.Context, userID string, cumulativeXP int) error {
	if err := l.client.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(cumulativeXP), Member: userID}).Err(); err != nil {
		return fmt.Errorf("record leaderboard: %w", err)
	}
	return nil
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	zs, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{UserID: member, CumulativeXP: int(z.Score)})
	}

	// ZREVRANGE orders equal scores by reverse member name, so the window may cut a tied run
	// at the wrong member. Replace the run at the boundary with all its members, ascending.
	if len(zs) == limit {
		boundary := zs[len(zs)-1].Score
		score := strconv.FormatFloat(boundary, 'f', -1, 64)
		tied, err := l.client.ZRangeByScore(ctx, leaderboardKey, &redis.ZRangeBy{Min: score, Max: score}).Result()
		if err != nil {
			return nil, fmt.Errorf("read leaderboard ties: %w", err)
		}
		above := entries[:0]
		for _, e := range entries {
			if float64(e.CumulativeXP) > boundary {
				above = append(above, e)
			}
		}
		entries = above
		for _, member := range tied {
			if len(entries) == limit {
				break
			}
			entries = append(entries, domain.LeaderboardEntry{UserID: member, CumulativeXP: int(boundary)})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CumulativeXP != entries[j].CumulativeXP {
			return entries[i].CumulativeXP > entries[j].CumulativeXP
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}
