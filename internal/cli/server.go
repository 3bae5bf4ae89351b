package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	"quiz-session-service/internal/infra/rabbitmq"
	infraredis "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
	"quiz-session-service/internal/room"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server and the lifecycle scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(map[string]domain.Quiz{demoQuizID: demoQuiz()})
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.Store
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewStore(db)
	} else {
		mem := memory.NewStore()
		seedMemory(ctx, mem, loc)
		store = mem
		log.Warn("postgres not configured, running with an in-memory store and demo data")
	}

	var presence room.Presence
	if redisClient != nil {
		presence = infraredis.NewPresence(redisClient, redisTTL)
	}

	var events app.EventPublisher
	if cfg.AMQP.URL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		events = publisher
	}

	metrics.Register(prometheus.DefaultRegisterer)

	opts := app.Options{
		PerCorrectCoins:       cfg.Rewards.PerCorrect,
		LeaderboardMultiplier: cfg.Rewards.LeaderboardMultiplier,
		LeaderboardTop:        cfg.Rewards.LeaderboardTop,
	}
	rooms := room.NewCoordinator(presence, log.Named("rooms"))
	service := app.NewQuizService(store, quizRepo, rooms, events, log.Named("quiz"), opts)
	admin := app.NewAdminService(store, quizRepo, loc)
	scheduler := app.NewScheduler(store, rooms, events, log.Named("scheduler"),
		config.TTLDuration(cfg.Scheduler.Interval, 30*time.Second), loc)

	router := transport.NewRouter(
		transport.NewWSHandler(service, rooms, log.Named("ws"), transport.WSOptions{
			MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
			Burst:             cfg.WebSocket.Burst,
		}),
		transport.NewAdminHandler(admin, service, log.Named("http")),
		metrics.Handler(),
		log.Named("http"),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(runCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort), zap.Stringer("timezone", loc))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serverErr:
		log.Error("server failed", zap.Error(err))
		cancel()
		<-schedulerDone
		return err
	}

	cancel()
	<-schedulerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
