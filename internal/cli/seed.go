package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
)

const demoQuizID = "quiz-1"

// NewSeedCmd loads the demo quiz, users and a session into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed Postgres with a demo quiz, users and session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			loader := postgres.NewQuizLoader(pool)
			if err := loader.SaveQuiz(ctx, demoQuiz()); err != nil {
				return err
			}

			db := postgres.OpenDB(cfg.Postgres.URL)
			defer db.Close()
			store := postgres.NewStore(db)
			for _, user := range demoUsers() {
				if err := store.PutUser(ctx, user); err != nil {
					return err
				}
			}

			admin := app.NewAdminService(store, memory.NewQuizRepository(loader, time.Minute), loc)
			session, err := admin.CreateSession(ctx, demoSessionInput(time.Now().In(loc)))
			if err != nil {
				return fmt.Errorf("create demo session: %w", err)
			}
			log.Info("seeded demo data",
				zap.String("quiz", demoQuizID),
				zap.String("session", session.ID),
				zap.Stringer("window", session.Window),
				zap.Int("users", len(demoUsers())))
			return nil
		},
	}
}

// seedMemory fills an in-memory store so the service is usable without Postgres.
func seedMemory(ctx context.Context, store *memory.Store, loc *time.Location) {
	for _, user := range demoUsers() {
		store.PutUser(user)
	}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{demoQuizID: demoQuiz()}), time.Minute)
	_, _ = app.NewAdminService(store, quizzes, loc).CreateSession(ctx, demoSessionInput(time.Now().In(loc)))
}

// demoSessionInput opens a free session one minute from now for half an hour.
func demoSessionInput(now time.Time) app.SessionInput {
	start := domain.MinuteOf(now.Add(time.Minute))
	end := domain.MinuteOf(now.Add(31 * time.Minute))
	return app.SessionInput{
		QuizID:    demoQuizID,
		HostID:    "host-1",
		Access:    domain.AccessFree,
		StartTime: start.String(),
		EndTime:   end.String(),
	}
}

func demoUsers() []domain.User {
	return []domain.User{
		{ID: "u1", Name: "Alice", Coins: 500},
		{ID: "u2", Name: "Bob", Coins: 500},
		{ID: "u3", Name: "Chi", Coins: 50},
	}
}

func demoQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    demoQuizID,
		Title: "Warm-up",
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
			{ID: "q2", Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter"}, CorrectIndex: 1},
			{ID: "q3", Text: "How many minutes are in a day?", Options: []string{"1440", "1400", "3600"}, CorrectIndex: 0},
		},
	}
}
