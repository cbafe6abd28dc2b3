package redis

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"elsa-progression-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ConfigLoader fetches activity configuration from a backing store (e.g., Postgres).
type ConfigLoader interface {
	LoadExamConfig(ctx context.Context, examID string) (domain.ExamConfig, error)
	LoadMinigameConfig(ctx context.Context, minigameID string) (domain.MinigameConfig, error)
	LoadContentAward(ctx context.Context, contentID string) (int, error)
}

// ConfigRepository caches activity configs in Redis and falls back to a loader on cache miss.
// Exams are stored as:     HSET exam:{examID}:config  {field} {value}
// Answer keys as:          HSET exam:{examID}:answers {questionID} {answerKey}
// Mini-games as:           HSET minigame:{minigameID}:config {field} {value}
// Content awards as:       SET  content:{contentID}:award {xp}
type ConfigRepository struct {
	client *redis.Client
	loader ConfigLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewConfigRepository(client *redis.Client, loader ConfigLoader, ttl time.Duration) *ConfigRepository {
	return &ConfigRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ConfigRepository) GetExamConfig(ctx context.Context, examID string) (domain.ExamConfig, error) {
	configKey := "exam:" + examID + ":config"
	answersKey := "exam:" + examID + ":answers"

	if cfg, ok := r.cachedExam(ctx, examID, configKey, answersKey); ok {
		return cfg, nil
	}

	result, err, _ := r.sf.Do("exam:"+examID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cfg, ok := r.cachedExam(ctx, examID, configKey, answersKey); ok {
			return cfg, nil
		}

		cfg, err := r.loader.LoadExamConfig(ctx, examID)
		if err != nil {
			return domain.ExamConfig{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		pipe.HSet(ctx, configKey,
			"base_xp_reward", cfg.BaseXPReward,
			"time_limit_seconds", cfg.TimeLimitSeconds,
			"passing_score_percentage", cfg.PassingScorePercentage,
			"num_questions_to_draw", cfg.NumQuestionsToDraw,
			"required_permission", cfg.RequiredPermission,
		)
		for questionID, answer := range cfg.AnswerKey {
			pipe.HSet(ctx, answersKey, questionID, answer)
		}
		if ttl > 0 {
			pipe.Expire(ctx, configKey, ttl)
			pipe.Expire(ctx, answersKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return cfg, nil
	})
	if err != nil {
		return domain.ExamConfig{}, err
	}
	return result.(domain.ExamConfig), nil
}

func (r *ConfigRepository) GetMinigameConfig(ctx context.Context, minigameID string) (domain.MinigameConfig, error) {
	key := "minigame:" + minigameID + ":config"

	if cfg, ok := r.cachedMinigame(ctx, minigameID, key); ok {
		return cfg, nil
	}

	result, err, _ := r.sf.Do("minigame:"+minigameID, func() (interface{}, error) {
		if cfg, ok := r.cachedMinigame(ctx, minigameID, key); ok {
			return cfg, nil
		}

		cfg, err := r.loader.LoadMinigameConfig(ctx, minigameID)
		if err != nil {
			return domain.MinigameConfig{}, err
		}

		pipe := r.client.Pipeline()
		pipe.HSet(ctx, key,
			"base_xp_gain", cfg.BaseXPGain,
			"max_daily_xp", cfg.MaxDailyXP,
			"required_permission", cfg.RequiredPermission,
		)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return cfg, nil
	})
	if err != nil {
		return domain.MinigameConfig{}, err
	}
	return result.(domain.MinigameConfig), nil
}

func (r *ConfigRepository) GetContentAward(ctx context.Context, contentID string) (int, error) {
	key := "content:" + contentID + ":award"

	if award, err := r.client.Get(ctx, key).Int(); err == nil {
		return award, nil
	}

	result, err, _ := r.sf.Do("content:"+contentID, func() (interface{}, error) {
		if award, err := r.client.Get(ctx, key).Int(); err == nil {
			return award, nil
		}

		award, err := r.loader.LoadContentAward(ctx, contentID)
		if err != nil {
			return 0, err
		}
		_ = r.client.Set(ctx, key, award, r.ttlWithJitter()).Err()
		return award, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (r *ConfigRepository) cachedExam(ctx context.Context, examID, configKey, answersKey string) (domain.ExamConfig, bool) {
	fields, err := r.client.HGetAll(ctx, configKey).Result()
	if err != nil || len(fields) == 0 {
		return domain.ExamConfig{}, false
	}
	answers, err := r.client.HGetAll(ctx, answersKey).Result()
	if err != nil {
		return domain.ExamConfig{}, false
	}
	passing, _ := strconv.ParseFloat(fields["passing_score_percentage"], 64)
	return domain.ExamConfig{
		ExamID:                 examID,
		BaseXPReward:           atoi(fields["base_xp_reward"]),
		TimeLimitSeconds:       atoi(fields["time_limit_seconds"]),
		PassingScorePercentage: passing,
		NumQuestionsToDraw:     atoi(fields["num_questions_to_draw"]),
		RequiredPermission:     fields["required_permission"],
		AnswerKey:              answers,
	}, true
}

func (r *ConfigRepository) cachedMinigame(ctx context.Context, minigameID, key string) (domain.MinigameConfig, bool) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return domain.MinigameConfig{}, false
	}
	return domain.MinigameConfig{
		MinigameID:         minigameID,
		BaseXPGain:         atoi(fields["base_xp_gain"]),
		MaxDailyXP:         atoi(fields["max_daily_xp"]),
		RequiredPermission: fields["required_permission"],
	}, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func (r *ConfigRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
