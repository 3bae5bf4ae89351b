package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func TestRankParticipantsRewardsOnlyTheTop(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	participants := []domain.Participant{
		{UserID: "a", Score: 1, Completed: true, CompletedAt: base},
		{UserID: "b", Score: 3, Completed: true, CompletedAt: base.Add(2 * time.Second)},
		{UserID: "c", Score: 3, Completed: true, CompletedAt: base.Add(time.Second)},
		{UserID: "d", Score: 2, Completed: true, CompletedAt: base},
		{UserID: "e", Score: 0, Completed: true, CompletedAt: base},
		{UserID: "f", Score: 2, Completed: true, CompletedAt: base},
		{UserID: "g", Score: 1, Completed: true, CompletedAt: base.Add(time.Minute)},
	}

	entries := app.RankParticipants(participants, map[string]string{"c": "Carol"}, app.DefaultOptions())
	if len(entries) != len(participants) {
		t.Fatalf("expected %d entries, got %d", len(participants), len(entries))
	}

	wantOrder := []string{"c", "b", "d", "f", "a", "g", "e"}
	for i, e := range entries {
		if e.UserID != wantOrder[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantOrder[i], e.UserID)
		}
		if e.Rank != i+1 {
			t.Fatalf("expected sequential rank %d, got %d", i+1, e.Rank)
		}
		wantCoins := 0
		if i < 5 {
			wantCoins = e.Score * 100
		}
		if e.Coins != wantCoins {
			t.Fatalf("%s: expected %d coins, got %d", e.UserID, wantCoins, e.Coins)
		}
	}
	if entries[0].DisplayName != "Carol" || entries[1].DisplayName != "b" {
		t.Fatalf("expected names with user ID fallback, got %q %q", entries[0].DisplayName, entries[1].DisplayName)
	}
	// Input order is left alone.
	if participants[0].UserID != "a" {
		t.Fatalf("ranking must not reorder the caller's slice")
	}
}

func TestBreakdownPairsAnswersWithCanonicalOptions(t *testing.T) {
	results := app.Breakdown(threeQuestions(), []domain.AnsweredQuestion{
		{QuestionID: "q1", Answer: "4"},
		{QuestionID: "q2", Answer: "Venus"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].IsCorrect || results[0].Correct != "4" || results[0].Question != "What is 2 + 2?" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].IsCorrect || results[1].Correct != "Mars" || results[1].Submitted != "Venus" {
		t.Fatalf("unexpected second result %+v", results[1])
	}
}

func TestSettleWaitsForEveryParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeQuestions(), domain.User{ID: "u1", Name: "Alice"})

	snapshot, err := f.service.Settle(ctx, "s1")
	if err != nil || snapshot != nil {
		t.Fatalf("empty session must not settle, got %+v %v", snapshot, err)
	}

	_, _ = f.service.Join(ctx, "s1", "u1")
	snapshot, err = f.service.Settle(ctx, "s1")
	if err != nil || snapshot != nil {
		t.Fatalf("session with a playing participant must not settle, got %+v %v", snapshot, err)
	}

	if _, err := f.service.Settle(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestSettleCreatesOneSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeQuestions(), domain.User{ID: "u1", Name: "Alice"})
	f.answerAll(t, "u1", "4", "Venus", "1440")

	snapshot, err := f.store.GetLeaderboard(ctx, "s1")
	if err != nil {
		t.Fatalf("expected snapshot after last completion: %v", err)
	}
	if snapshot.Entries[0].Score != 2 || snapshot.Entries[0].Coins != 200 {
		t.Fatalf("unexpected entry %+v", snapshot.Entries[0])
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Settle(ctx, "s1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, domain.ErrLeaderboardExists) {
			t.Fatalf("expected leaderboard exists, got %v", err)
		}
	}

	user, _ := f.store.GetUser(ctx, "u1")
	if user.Coins != 400 {
		t.Fatalf("expected 200 answer + 200 reward coins once, got %d", user.Coins)
	}
	if n := f.rooms.count(app.EventQuizEnd); n != 1 {
		t.Fatalf("expected a single quizEnd broadcast, got %d", n)
	}
}

func TestDuplicateCompletionSignalIsHarmless(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeQuestions(), domain.User{ID: "u1", Name: "Alice"})
	f.answerAll(t, "u1", "4", "Mars", "1440")

	outcome, err := f.service.SubmitAnswer(ctx, "s1", "u1", "q3", "1400")
	if err != nil {
		t.Fatalf("resubmit last answer: %v", err)
	}
	if !outcome.Duplicate || outcome.Completed == nil || outcome.Completed.Score != 3 {
		t.Fatalf("expected the original completion, got %+v", outcome)
	}
	if n := f.events.count(app.TopicQuizCompleted); n != 1 {
		t.Fatalf("expected one completion event, got %d", n)
	}
	user, _ := f.store.GetUser(ctx, "u1")
	if user.Coins != 600 {
		t.Fatalf("expected balance untouched by the duplicate, got %d", user.Coins)
	}
}
