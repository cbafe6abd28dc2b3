package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"elsa-progression-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ConfigLoader fetches activity configuration from a backing store (e.g., Postgres).
type ConfigLoader interface {
	LoadExamConfig(ctx context.Context, examID string) (domain.ExamConfig, error)
	LoadMinigameConfig(ctx context.Context, minigameID string) (domain.MinigameConfig, error)
	LoadContentAward(ctx context.Context, contentID string) (int, error)
}

// ConfigRepository caches configs with TTL to avoid repeated DB hits.
type ConfigRepository struct {
	loader ConfigLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedConfig
}

type cachedConfig struct {
	value     interface{}
	expiresAt time.Time
}

func NewConfigRepository(loader ConfigLoader, ttl time.Duration) *ConfigRepository {
	return &ConfigRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedConfig),
	}
}

func (r *ConfigRepository) GetExamConfig(ctx context.Context, examID string) (domain.ExamConfig, error) {
	v, err := r.get("exam:"+examID, func() (interface{}, error) {
		return r.loader.LoadExamConfig(ctx, examID)
	})
	if err != nil {
		return domain.ExamConfig{}, err
	}
	return v.(domain.ExamConfig), nil
}

func (r *ConfigRepository) GetMinigameConfig(ctx context.Context, minigameID string) (domain.MinigameConfig, error) {
	v, err := r.get("minigame:"+minigameID, func() (interface{}, error) {
		return r.loader.LoadMinigameConfig(ctx, minigameID)
	})
	if err != nil {
		return domain.MinigameConfig{}, err
	}
	return v.(domain.MinigameConfig), nil
}

func (r *ConfigRepository) GetContentAward(ctx context.Context, contentID string) (int, error) {
	v, err := r.get("content:"+contentID, func() (interface{}, error) {
		return r.loader.LoadContentAward(ctx, contentID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (r *ConfigRepository) get(key string, load func() (interface{}, error)) (interface{}, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.value, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.value, nil
		}
		r.mu.RUnlock()

		value, err := load()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = cachedConfig{
			value:     value,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ConfigRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticConfigLoader is a simple loader backed by in-memory maps (useful for tests/demos).
type StaticConfigLoader struct {
	Exams     map[string]domain.ExamConfig
	Minigames map[string]domain.MinigameConfig
	Content   map[string]int
}

func (l *StaticConfigLoader) LoadExamConfig(_ context.Context, examID string) (domain.ExamConfig, error) {
	if cfg, ok := l.Exams[examID]; ok {
		return cfg, nil
	}
	return domain.ExamConfig{}, domain.ErrExamNotFound
}

func (l *StaticConfigLoader) LoadMinigameConfig(_ context.Context, minigameID string) (domain.MinigameConfig, error) {
	if cfg, ok := l.Minigames[minigameID]; ok {
		return cfg, nil
	}
	return domain.MinigameConfig{}, domain.ErrMinigameNotFound
}

func (l *StaticConfigLoader) LoadContentAward(_ context.Context, contentID string) (int, error) {
	if award, ok := l.Content[contentID]; ok {
		return award, nil
	}
	return 0, domain.ErrContentNotFound
}
