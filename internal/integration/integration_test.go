package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"elsa-progression-service/internal/app"
	"elsa-progression-service/internal/domain"
	pgstore "elsa-progression-service/internal/infra/postgres"
	pgmigrations "elsa-progression-service/internal/infra/postgres/migrations"
	infraredis "elsa-progression-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var day = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestProgressionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	service, pool := newService(t, ctx)

	answers := map[string]string{"q1": "b", "q2": "a", "q3": "d", "q4": "c"}
	elapsed := 100
	exam, _ := domain.NewExamAttempt("u1", day, "exam-1", answers, &elapsed)
	res, err := service.Submit(ctx, exam)
	if err != nil {
		t.Fatalf("submit exam: %v", err)
	}
	// 3 of 4 correct, finished within half the limit: round(100 * 0.75 * 1.2).
	if res.CappedAmount != 90 || !res.Exam.Passed {
		t.Fatalf("expected 90 xp passed exam, got %+v", res)
	}

	content, _ := domain.NewContentAttempt("u1", day, "podcast-1")
	if res, err = service.Submit(ctx, content); err != nil || res.CappedAmount != 25 {
		t.Fatalf("first listen: %+v err=%v", res, err)
	}
	if res, err = service.Submit(ctx, content); err != nil || res.CappedAmount != 0 || !res.Diagnostics.Breakdown.AlreadyAwarded {
		t.Fatalf("second listen should award nothing: %+v err=%v", res, err)
	}

	admin, _ := domain.NewAdminAward("u1", day, 900, "event prize")
	if res, err = service.Submit(ctx, admin); err != nil || !res.LeveledUp || res.NewLevel.Level != 2 {
		t.Fatalf("expected level up to 2, got %+v err=%v", res, err)
	}

	progress, err := service.Progress(ctx, "u1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.CumulativeXP != 1015 || progress.Level.Level != 2 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	var logged int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM xp_award_log WHERE user_id='u1'`).Scan(&logged); err != nil {
		t.Fatalf("count award log: %v", err)
	}
	if logged != 4 {
		t.Fatalf("expected 4 award log rows, got %d", logged)
	}

	lb, err := service.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" || lb.Entries[0].CumulativeXP != 1015 {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}
}

func TestConcurrentMinigameSubmissionsRespectDailyCap(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	service, _ := newService(t, ctx)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, _ := domain.NewMinigameAttempt("u2", day.Add(time.Duration(i)*time.Minute),
				domain.MinigameResult{MinigameID: "word-match", Score: 10, MaxPossibleScore: 10}, nil)
			res, err := service.Submit(ctx, attempt)
			if err != nil {
				t.Errorf("submit #%d: %v", i, err)
				return
			}
			mu.Lock()
			total += res.CappedAmount
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if total != 100 {
		t.Fatalf("expected exactly the daily cap of 100 across concurrent plays, got %d", total)
	}
	progress, err := service.Progress(ctx, "u2")
	if err != nil || progress.CumulativeXP != 100 {
		t.Fatalf("expected 100 xp persisted, got %+v err=%v", progress, err)
	}

	nextDay, _ := domain.NewMinigameAttempt("u2", day.Add(24*time.Hour),
		domain.MinigameResult{MinigameID: "word-match", Score: 10, MaxPossibleScore: 10}, nil)
	res, err := service.Submit(ctx, nextDay)
	if err != nil || res.CappedAmount != 30 {
		t.Fatalf("cap should reset the next day, got %+v err=%v", res, err)
	}
}

func newService(t *testing.T, ctx context.Context) (*app.ActivityService, *pgxpool.Pool) {
	t.Helper()
	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	seedConfigs(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	configs := infraredis.NewConfigRepository(redisClient, pgstore.NewConfigLoader(pool), 5*time.Minute)
	service := app.NewActivityService(pgstore.NewProgressionStore(pool), configs,
		app.WithLeaderboard(infraredis.NewLeaderboard(redisClient), 10),
	)
	return service, pool
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "progression", "POSTGRES_PASSWORD": "progressionpass", "POSTGRES_DB": "progressiondb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://progression:progressionpass@%s:%s/progressiondb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedConfigs(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	exam := domain.ExamConfig{
		ExamID:                 "exam-1",
		BaseXPReward:           100,
		TimeLimitSeconds:       300,
		PassingScorePercentage: 60,
		NumQuestionsToDraw:     4,
		AnswerKey:              map[string]string{"q1": "b", "q2": "a", "q3": "d", "q4": "a"},
	}
	data, err := json.Marshal(exam)
	if err != nil {
		t.Fatalf("marshal exam: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO exam_configs (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, exam.ExamID, string(data)); err != nil {
		t.Fatalf("insert exam: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO minigame_configs (id, base_xp_gain, max_daily_xp) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`, "word-match", 30, 100); err != nil {
		t.Fatalf("insert minigame: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO content_items (id, award_xp) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, "podcast-1", 25); err != nil {
		t.Fatalf("insert content: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
