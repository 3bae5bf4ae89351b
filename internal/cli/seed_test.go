package cli

import (
	"context"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func TestDemoSessionInputWrapsMidnight(t *testing.T) {
	in := demoSessionInput(time.Date(2024, 5, 1, 23, 50, 0, 0, time.UTC))
	if in.StartTime != "23:51" || in.EndTime != "00:21" {
		t.Fatalf("unexpected window %s-%s", in.StartTime, in.EndTime)
	}
	if _, err := domain.NewWindow(in.StartTime, in.EndTime); err != nil {
		t.Fatalf("demo window must parse: %v", err)
	}
}

func TestSeedMemoryLoadsDemoData(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedMemory(ctx, store, time.UTC)

	sessions, err := store.ListSessions(ctx)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("expected one demo session, got %d %v", len(sessions), err)
	}
	if sessions[0].QuizID != demoQuizID || sessions[0].Status != domain.StatusNotStarted {
		t.Fatalf("unexpected demo session %+v", sessions[0])
	}
	for _, u := range demoUsers() {
		if _, err := store.GetUser(ctx, u.ID); err != nil {
			t.Fatalf("expected demo user %s: %v", u.ID, err)
		}
	}
	if err := demoQuiz().Validate(); err != nil {
		t.Fatalf("demo quiz must validate: %v", err)
	}
}
