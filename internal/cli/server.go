package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elsa-progression-service/internal/app"
	"elsa-progression-service/internal/config"
	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/infra/memory"
	pgstore "elsa-progression-service/internal/infra/postgres"
	"elsa-progression-service/internal/infra/rabbitmq"
	redisstore "elsa-progression-service/internal/infra/redis"
	"elsa-progression-service/internal/logger"
	transport "elsa-progression-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progression server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.ConfigLoader = &memory.StaticConfigLoader{
		Exams:     sampleExams(),
		Minigames: sampleMinigames(),
		Content:   sampleContent(),
	}
	if pool != nil {
		loader = pgstore.NewConfigLoader(pool)
	}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	var configs app.ConfigProvider
	if redisClient != nil {
		configs = redisstore.NewConfigRepository(redisClient, loader, cacheTTL)
	} else {
		configs = memory.NewConfigRepository(loader, cacheTTL)
	}

	var store app.ProgressionStore
	if pool != nil {
		store = pgstore.NewProgressionStore(pool)
	} else {
		store = memory.NewProgressionStore()
	}

	var leaderboard app.LeaderboardRepository
	if redisClient != nil {
		leaderboard = redisstore.NewLeaderboard(redisClient)
	} else {
		leaderboard = memory.NewLeaderboard()
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithLeaderboard(leaderboard, cfg.Progression.LeaderboardSize),
		app.WithRejectUngradableExams(cfg.Progression.RejectUngradableExams),
	}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.Dial(cfg.RabbitMQ.URL, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
	}

	service := app.NewActivityService(store, configs, opts...)

	mux := http.NewServeMux()
	transport.NewHandler(service, log).Routes(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting progression service", "port", finalPort,
			"postgres", pool != nil, "redis", redisClient != nil, "rabbitmq", cfg.RabbitMQ.URL != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Sample activity configs for running without Postgres.
func sampleExams() map[string]domain.ExamConfig {
	return map[string]domain.ExamConfig{
		"exam-1": {
			ExamID:                 "exam-1",
			BaseXPReward:           100,
			TimeLimitSeconds:       300,
			PassingScorePercentage: 60,
			NumQuestionsToDraw:     3,
			AnswerKey:              map[string]string{"q1": "b", "q2": "a", "q3": "d"},
		},
	}
}

func sampleMinigames() map[string]domain.MinigameConfig {
	return map[string]domain.MinigameConfig{
		"word-match": {MinigameID: "word-match", BaseXPGain: 30, MaxDailyXP: 100},
	}
}

func sampleContent() map[string]int {
	return map[string]int{"podcast-1": 25}
}
