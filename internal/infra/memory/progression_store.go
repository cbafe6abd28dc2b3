package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"elsa-progression-service/internal/app"
	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/progression"
)

// DefaultLogRetention keeps award log entries around for cap enforcement.
const DefaultLogRetention = 48 * time.Hour

// ProgressionStore is an in-memory implementation of app.ProgressionStore.
// Each user has its own lock; writes are staged and only applied when the transaction succeeds.
type ProgressionStore struct {
	retention time.Duration
	clock     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu      sync.RWMutex
	xp      map[string]int
	logs    map[string][]domain.AwardLogEntry
	content map[string]map[string]struct{}
}

type StoreOption func(*ProgressionStore)

// WithClock sets the clock award log retention is measured against.
func WithClock(now func() time.Time) StoreOption {
	return func(s *ProgressionStore) { s.clock = now }
}

func NewProgressionStore(opts ...StoreOption) *ProgressionStore {
	s := &ProgressionStore{
		retention: DefaultLogRetention,
		clock:     time.Now,
		locks:     make(map[string]*sync.Mutex),
		xp:        make(map[string]int),
		logs:      make(map[string][]domain.AwardLogEntry),
		content:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCumulativeXP seeds a user's total (demos/tests).
func (s *ProgressionStore) SetCumulativeXP(userID string, xp int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xp[userID] = xp
}

func (s *ProgressionStore) WithinUserTx(ctx context.Context, userID string, fn func(tx app.UserTx) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, userID: userID}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *ProgressionStore) GetUserProgressionState(_ context.Context, userID string) (domain.UserProgressionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	xp := s.xp[userID]
	return domain.UserProgressionState{
		UserID:       userID,
		CumulativeXP: xp,
		CurrentLevel: progression.LevelFor(xp).Level,
	}, nil
}

func (s *ProgressionStore) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *ProgressionStore) commit(tx *memoryTx) error {
	if tx.pending == nil {
		return nil
	}
	res := *tx.pending

	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Kind == domain.ActivityContentListen && !res.Diagnostics.Breakdown.AlreadyAwarded {
		awarded, ok := s.content[res.UserID]
		if !ok {
			awarded = make(map[string]struct{})
			s.content[res.UserID] = awarded
		}
		if _, dup := awarded[res.SourceID]; dup {
			return domain.ErrContentAlreadyAwarded
		}
		awarded[res.SourceID] = struct{}{}
	}

	s.xp[res.UserID] = res.NewCumulativeXP

	entry := res.AwardEntry()
	cutoff := s.clock().Add(-s.retention)
	kept := s.logs[res.UserID][:0]
	for _, e := range s.logs[res.UserID] {
		if !e.AwardedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	s.logs[res.UserID] = append(kept, entry)
	return nil
}

type memoryTx struct {
	store   *ProgressionStore
	userID  string
	pending *domain.ProgressionResult
}

func (t *memoryTx) GetUserProgressionState(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	if err := t.checkUser(userID); err != nil {
		return domain.UserProgressionState{}, err
	}
	return t.store.GetUserProgressionState(ctx, userID)
}

func (t *memoryTx) GetDailyAwardLog(_ context.Context, userID string, kind domain.ActivityKind, sourceID string, window domain.TimeWindow) ([]domain.AwardLogEntry, error) {
	if err := t.checkUser(userID); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var out []domain.AwardLogEntry
	for _, e := range t.store.logs[userID] {
		if e.Kind == kind && e.SourceID == sourceID && window.Contains(e.AwardedAt) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) HasContentBeenAwarded(_ context.Context, userID, contentID string) (bool, error) {
	if err := t.checkUser(userID); err != nil {
		return false, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.content[userID][contentID]
	return ok, nil
}

func (t *memoryTx) PersistProgressionResult(_ context.Context, result domain.ProgressionResult) error {
	if err := t.checkUser(result.UserID); err != nil {
		return err
	}
	t.pending = &result
	return nil
}

func (t *memoryTx) checkUser(userID string) error {
	if userID != t.userID {
		return fmt.Errorf("transaction for user %q cannot access user %q", t.userID, userID)
	}
	return nil
}
