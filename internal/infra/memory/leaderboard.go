package memory

import (
	"context"
	"sort"
	"sync"

	"elsa-progression-service/internal/domain"
)

// Leaderboard ranks users by cumulative XP in memory.
type Leaderboard struct {
	mu     sync.RWMutex
	scores map[string]int
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{scores: make(map[string]int)}
}

func (l *Leaderboard) Record(_ context.Context, userID string, cumulativeXP int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scores[userID] = cumulativeXP
	return nil
}

func (l *Leaderboard) Top(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	entries := make([]domain.LeaderboardEntry, 0, len(l.scores))
	for userID, xp := range l.scores {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, CumulativeXP: xp})
	}
	l.mu.RUnlock()

	// XP desc, then user id so ties are stable.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CumulativeXP != entries[j].CumulativeXP {
			return entries[i].CumulativeXP > entries[j].CumulativeXP
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
