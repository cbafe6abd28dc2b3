package postgres

import (
	"context"
	"errors"
	"fmt"

	"elsa-progression-service/internal/app"
	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/progression"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProgressionStore keeps progression state in Postgres. Each user transaction locks the
// user's row with SELECT ... FOR UPDATE, so concurrent submissions for one user serialize.
type ProgressionStore struct {
	pool *pgxpool.Pool
}

func NewProgressionStore(pool *pgxpool.Pool) *ProgressionStore {
	return &ProgressionStore{pool: pool}
}

func (s *ProgressionStore) WithinUserTx(ctx context.Context, userID string, fn func(tx app.UserTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_progression (user_id, cumulative_xp, current_level) VALUES ($1, 0, 1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return fmt.Errorf("ensure user row: %w", err)
	}

	var xp int
	if err := tx.QueryRow(ctx,
		`SELECT cumulative_xp FROM user_progression WHERE user_id=$1 FOR UPDATE`, userID,
	).Scan(&xp); err != nil {
		return fmt.Errorf("lock user row: %w", err)
	}

	if err := fn(&pgUserTx{tx: tx, userID: userID, cumulativeXP: xp}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *ProgressionStore) GetUserProgressionState(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	var xp int
	err := s.pool.QueryRow(ctx, `SELECT cumulative_xp FROM user_progression WHERE user_id=$1`, userID).Scan(&xp)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProgressionState{}, fmt.Errorf("load progression: %w", err)
	}
	return domain.UserProgressionState{
		UserID:       userID,
		CumulativeXP: xp,
		CurrentLevel: progression.LevelFor(xp).Level,
	}, nil
}

type pgUserTx struct {
	tx           pgx.Tx
	userID       string
	cumulativeXP int
}

func (t *pgUserTx) GetUserProgressionState(_ context.Context, userID string) (domain.UserProgressionState, error) {
	if err := t.checkUser(userID); err != nil {
		return domain.UserProgressionState{}, err
	}
	return domain.UserProgressionState{
		UserID:       userID,
		CumulativeXP: t.cumulativeXP,
		CurrentLevel: progression.LevelFor(t.cumulativeXP).Level,
	}, nil
}

func (t *pgUserTx) GetDailyAwardLog(ctx context.Context, userID string, kind domain.ActivityKind, sourceID string, window domain.TimeWindow) ([]domain.AwardLogEntry, error) {
	if err := t.checkUser(userID); err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, `
		SELECT amount, awarded_at FROM xp_award_log
		WHERE user_id=$1 AND kind=$2 AND source_id=$3 AND awarded_at >= $4 AND awarded_at < $5
		ORDER BY awarded_at`,
		userID, string(kind), sourceID, window.Start, window.End,
	)
	if err != nil {
		return nil, fmt.Errorf("query award log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AwardLogEntry
	for rows.Next() {
		e := domain.AwardLogEntry{UserID: userID, Kind: kind, SourceID: sourceID}
		if err := rows.Scan(&e.Amount, &e.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan award log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *pgUserTx) HasContentBeenAwarded(ctx context.Context, userID, contentID string) (bool, error) {
	if err := t.checkUser(userID); err != nil {
		return false, err
	}
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_awards WHERE user_id=$1 AND content_id=$2)`, userID, contentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check content award: %w", err)
	}
	return exists, nil
}

func (t *pgUserTx) PersistProgressionResult(ctx context.Context, result domain.ProgressionResult) error {
	if err := t.checkUser(result.UserID); err != nil {
		return err
	}

	if result.Kind == domain.ActivityContentListen && !result.Diagnostics.Breakdown.AlreadyAwarded {
		tag, err := t.tx.Exec(ctx,
			`INSERT INTO content_awards (user_id, content_id, awarded_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			result.UserID, result.SourceID, result.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("record content award: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrContentAlreadyAwarded
		}
	}

	if _, err := t.tx.Exec(ctx,
		`UPDATE user_progression SET cumulative_xp=$2, current_level=$3, updated_at=now() WHERE user_id=$1`,
		result.UserID, result.NewCumulativeXP, result.NewLevel.Level,
	); err != nil {
		return fmt.Errorf("update progression: %w", err)
	}

	entry := result.AwardEntry()
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO xp_award_log (user_id, kind, source_id, amount, awarded_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.UserID, string(entry.Kind), entry.SourceID, entry.Amount, entry.AwardedAt,
	); err != nil {
		return fmt.Errorf("append award log: %w", err)
	}

	t.cumulativeXP = result.NewCumulativeXP
	return nil
}

func (t *pgUserTx) checkUser(userID string) error {
	if userID != t.userID {
		return fmt.Errorf("transaction for user %q cannot access user %q", t.userID, userID)
	}
	return nil
}
