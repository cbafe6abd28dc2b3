package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"elsa-progression-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ConfigLoader loads activity configuration from Postgres.
// Exams are stored as JSONB; mini-games and content awards as plain columns.
type ConfigLoader struct {
	pool *pgxpool.Pool
}

func NewConfigLoader(pool *pgxpool.Pool) *ConfigLoader {
	return &ConfigLoader{pool: pool}
}

func (l *ConfigLoader) LoadExamConfig(ctx context.Context, examID string) (domain.ExamConfig, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM exam_configs WHERE id=$1`, examID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExamConfig{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.ExamConfig{}, fmt.Errorf("load exam config: %w", err)
	}
	var cfg domain.ExamConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.ExamConfig{}, fmt.Errorf("unmarshal exam config: %w", err)
	}
	cfg.ExamID = examID
	return cfg, nil
}

func (l *ConfigLoader) LoadMinigameConfig(ctx context.Context, minigameID string) (domain.MinigameConfig, error) {
	cfg := domain.MinigameConfig{MinigameID: minigameID}
	err := l.pool.QueryRow(ctx,
		`SELECT base_xp_gain, max_daily_xp, required_permission FROM minigame_configs WHERE id=$1`, minigameID,
	).Scan(&cfg.BaseXPGain, &cfg.MaxDailyXP, &cfg.RequiredPermission)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MinigameConfig{}, domain.ErrMinigameNotFound
	}
	if err != nil {
		return domain.MinigameConfig{}, fmt.Errorf("load minigame config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadContentAward(ctx context.Context, contentID string) (int, error) {
	var award int
	err := l.pool.QueryRow(ctx, `SELECT award_xp FROM content_items WHERE id=$1`, contentID).Scan(&award)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrContentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load content award: %w", err)
	}
	return award, nil
}
