package app

import (
	"context"
	"errors"
	"time"

	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/logger"
	"elsa-progression-service/internal/progression"
)

// UserTx is the view of the store inside one user's serialized read-modify-write.
type UserTx interface {
	GetUserProgressionState(ctx context.Context, userID string) (domain.UserProgressionState, error)
	GetDailyAwardLog(ctx context.Context, userID string, kind domain.ActivityKind, sourceID string, window domain.TimeWindow) ([]domain.AwardLogEntry, error)
	HasContentBeenAwarded(ctx context.Context, userID, contentID string) (bool, error)
	PersistProgressionResult(ctx context.Context, result domain.ProgressionResult) error
}

// ProgressionStore abstracts where progression state lives (in-memory, Postgres).
// WithinUserTx must serialize calls for the same user and roll back when fn fails.
type ProgressionStore interface {
	WithinUserTx(ctx context.Context, userID string, fn func(tx UserTx) error) error
	GetUserProgressionState(ctx context.Context, userID string) (domain.UserProgressionState, error)
}

// ConfigProvider loads activity configuration (from cache/backing store).
type ConfigProvider interface {
	GetExamConfig(ctx context.Context, examID string) (domain.ExamConfig, error)
	GetMinigameConfig(ctx context.Context, minigameID string) (domain.MinigameConfig, error)
	GetContentAward(ctx context.Context, contentID string) (int, error)
}

// LeaderboardRepository keeps the XP ranking.
type LeaderboardRepository interface {
	Record(ctx context.Context, userID string, cumulativeXP int) error
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// EventPublisher announces level-ups to other services.
type EventPublisher interface {
	PublishLevelUp(ctx context.Context, result domain.ProgressionResult) error
}

type Option func(*ActivityService)

func WithLogger(log *logger.Logger) Option {
	return func(s *ActivityService) { s.log = log }
}

func WithLeaderboard(repo LeaderboardRepository, size int) Option {
	return func(s *ActivityService) {
		s.leaderboard = repo
		if size > 0 {
			s.leaderboardSize = size
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *ActivityService) { s.events = p }
}

// WithRejectUngradableExams makes Submit fail with domain.ErrNoGradableQuestions instead of
// recording a zero award.
func WithRejectUngradableExams(reject bool) Option {
	return func(s *ActivityService) { s.rejectUngradable = reject }
}

// WithClock sets the clock used to stamp received attempts and leaderboard snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *ActivityService) { s.now = now }
}

// ActivityService contains the progression use cases behind the HTTP endpoints.
type ActivityService struct {
	store            ProgressionStore
	configs          ConfigProvider
	engine           *progression.Service
	leaderboard      LeaderboardRepository
	leaderboardSize  int
	events           EventPublisher
	hub              *Hub
	log              *logger.Logger
	rejectUngradable bool
	now              func() time.Time
}

func NewActivityService(store ProgressionStore, configs ConfigProvider, opts ...Option) *ActivityService {
	s := &ActivityService{
		store:           store,
		configs:         configs,
		leaderboardSize: 10,
		hub:             NewHub(),
		log:             logger.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = progression.NewService(s.log)
	return s
}

// Submit scores an attempt against the user's current state and persists the effect.
func (s *ActivityService) Submit(ctx context.Context, attempt domain.ScoreAttempt) (domain.ProgressionResult, error) {
	if err := attempt.Validate(); err != nil {
		return domain.ProgressionResult{}, err
	}

	cfg, err := s.activityConfig(ctx, attempt)
	if err != nil {
		return domain.ProgressionResult{}, err
	}

	var result domain.ProgressionResult
	err = s.store.WithinUserTx(ctx, attempt.UserID, func(tx UserTx) error {
		state, err := tx.GetUserProgressionState(ctx, attempt.UserID)
		if err != nil {
			return err
		}

		switch attempt.Kind {
		case domain.ActivityMinigame:
			entries, err := tx.GetDailyAwardLog(ctx, attempt.UserID, attempt.Kind, attempt.SourceID(), progression.DayWindow(attempt.OccurredAt))
			if err != nil {
				return err
			}
			state.DailyAwardLog = entries
		case domain.ActivityContentListen:
			awarded, err := tx.HasContentBeenAwarded(ctx, attempt.UserID, attempt.SourceID())
			if err != nil {
				return err
			}
			cfg.ContentAlreadyAwarded = awarded
		}

		res, err := s.engine.Apply(attempt, state, cfg)
		if err != nil {
			return err
		}
		if res.Exam != nil && res.Exam.NoGradableQuestions && s.rejectUngradable {
			return domain.ErrNoGradableQuestions
		}
		if err := tx.PersistProgressionResult(ctx, res); err != nil {
			return err
		}
		// Recorded while the user is still locked so totals reach the ranking in commit order.
		s.recordLeaderboard(ctx, res)
		result = res
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidAttempt) && !errors.Is(err, domain.ErrNoGradableQuestions) {
			s.log.Error("submit attempt failed", "user_id", attempt.UserID, "kind", attempt.Kind, "error", err)
		}
		return domain.ProgressionResult{}, err
	}

	s.log.Info("attempt applied",
		"user_id", result.UserID,
		"kind", result.Kind,
		"source_id", result.SourceID,
		"raw", result.RawAmount,
		"capped", result.CappedAmount,
		"applied", result.AppliedXP,
		"level", result.NewLevel.Level,
	)
	s.afterCommit(ctx, result)
	return result, nil
}

func (s *ActivityService) recordLeaderboard(ctx context.Context, result domain.ProgressionResult) {
	if s.leaderboard == nil {
		return
	}
	if err := s.leaderboard.Record(ctx, result.UserID, result.NewCumulativeXP); err != nil {
		s.log.Warn("leaderboard update failed", "user_id", result.UserID, "error", err)
	}
}

// afterCommit runs best-effort side effects; the result is already persisted.
func (s *ActivityService) afterCommit(ctx context.Context, result domain.ProgressionResult) {
	if s.leaderboard != nil && s.hub.Subscribers() > 0 {
		if lb, err := s.Leaderboard(ctx, s.leaderboardSize); err == nil {
			s.hub.Broadcast(lb)
		}
	}
	if result.LeveledUp && s.events != nil {
		if err := s.events.PublishLevelUp(ctx, result); err != nil {
			s.log.Warn("level-up publish failed", "user_id", result.UserID, "error", err)
		}
	}
}

func (s *ActivityService) activityConfig(ctx context.Context, attempt domain.ScoreAttempt) (progression.ActivityConfig, error) {
	var cfg progression.ActivityConfig
	switch attempt.Kind {
	case domain.ActivityExam:
		exam, err := s.configs.GetExamConfig(ctx, attempt.SourceID())
		if err != nil {
			return cfg, err
		}
		cfg.Exam = &exam
	case domain.ActivityMinigame:
		game, err := s.configs.GetMinigameConfig(ctx, attempt.SourceID())
		if err != nil {
			return cfg, err
		}
		cfg.Minigame = &game
	case domain.ActivityContentListen:
		award, err := s.configs.GetContentAward(ctx, attempt.SourceID())
		if err != nil {
			return cfg, err
		}
		cfg.Content = &domain.ContentConfig{ContentID: attempt.SourceID(), AwardXP: award}
	}
	return cfg, nil
}

// Now is the time the service stamps on attempts it receives.
func (s *ActivityService) Now() time.Time {
	return s.now()
}

// Progress returns a user's cumulative XP and derived level.
func (s *ActivityService) Progress(ctx context.Context, userID string) (domain.ProgressView, error) {
	state, err := s.store.GetUserProgressionState(ctx, userID)
	if err != nil {
		return domain.ProgressView{}, err
	}
	xp := state.CumulativeXP
	if xp < 0 {
		xp = 0
	}
	return domain.ProgressView{UserID: userID, CumulativeXP: xp, Level: progression.LevelFor(xp)}, nil
}

// Leaderboard returns the top users by cumulative XP.
func (s *ActivityService) Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	if s.leaderboard == nil {
		return domain.Leaderboard{Entries: []domain.LeaderboardEntry{}, UpdatedAt: s.now()}, nil
	}
	if limit <= 0 {
		limit = s.leaderboardSize
	}
	entries, err := s.leaderboard.Top(ctx, limit)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	for i := range entries {
		entries[i].Level = progression.LevelFor(entries[i].CumulativeXP).Level
	}
	return domain.Leaderboard{Entries: entries, UpdatedAt: s.now()}, nil
}

// Subscribe returns a channel that receives leaderboard updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ActivityService) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	initial, err := s.Leaderboard(ctx, s.leaderboardSize)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(initial)
	return ch, cancel, nil
}
