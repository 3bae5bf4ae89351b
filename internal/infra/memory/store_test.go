package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func TestRecordAnswerIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.PutUser(domain.User{ID: "u1", Name: "Alice"})
	now := time.Now()
	if _, err := store.GetOrCreateParticipant(ctx, "s1", "u1", now); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	rec := app.AnswerRecord{
		SessionID:  "s1",
		UserID:     "u1",
		QuestionID: "q1",
		Answer:     "4",
		Position:   0,
		Correct:    true,
		Coins:      100,
		Total:      3,
		At:         now,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.RecordAnswer(ctx, rec)
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("expected exactly one applied answer, got %d", applied)
	}
	p, err := store.GetParticipant(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if p.Score != 1 || p.CoinsEarned != 100 || p.CurrentIndex != 1 || len(p.Answers) != 1 {
		t.Fatalf("unexpected participant %+v", p)
	}
	user, _ := store.GetUser(ctx, "u1")
	if user.Coins != 100 {
		t.Fatalf("expected the answer coins credited once, got %d", user.Coins)
	}
}

func TestRecordAnswerCreditFailureLeavesParticipantUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()
	_, _ = store.GetOrCreateParticipant(ctx, "s1", "ghost", now)

	_, ok, err := store.RecordAnswer(ctx, app.AnswerRecord{
		SessionID: "s1", UserID: "ghost", QuestionID: "q1", Answer: "4", Position: 0, Correct: true, Coins: 100, Total: 2, At: now,
	})
	if ok || !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got ok=%v err=%v", ok, err)
	}
	p, _ := store.GetParticipant(ctx, "s1", "ghost")
	if p.Score != 0 || p.CoinsEarned != 0 || p.CurrentIndex != 0 || len(p.Answers) != 0 {
		t.Fatalf("a failed credit must not score the answer, got %+v", p)
	}
}

func TestRecordAnswerCompletesAndRejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()
	_, _ = store.GetOrCreateParticipant(ctx, "s1", "u1", now)

	_, _, err := store.RecordAnswer(ctx, app.AnswerRecord{SessionID: "s1", UserID: "u1", QuestionID: "q2", Position: 1, Total: 2, At: now})
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("expected out of order, got %v", err)
	}

	_, _, _ = store.RecordAnswer(ctx, app.AnswerRecord{SessionID: "s1", UserID: "u1", QuestionID: "q1", Position: 0, Total: 2, At: now})
	p, ok, err := store.RecordAnswer(ctx, app.AnswerRecord{SessionID: "s1", UserID: "u1", QuestionID: "q2", Position: 1, Total: 2, At: now})
	if err != nil || !ok {
		t.Fatalf("record second answer: ok=%v err=%v", ok, err)
	}
	if !p.Completed || p.CurrentIndex != 2 || !p.CompletedAt.Equal(now) {
		t.Fatalf("expected completion, got %+v", p)
	}
}

func TestEnterParticipantChargesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.PutUser(domain.User{ID: "rich", Name: "Rich", Coins: 150})
	store.PutUser(domain.User{ID: "poor", Name: "Poor", Coins: 10})

	if _, created, err := store.EnterParticipant(ctx, "s1", "rich", 100, time.Now()); err != nil || !created {
		t.Fatalf("expected paid entry, created=%v err=%v", created, err)
	}
	if _, created, err := store.EnterParticipant(ctx, "s1", "rich", 100, time.Now()); err != nil || created {
		t.Fatalf("expected no second charge, created=%v err=%v", created, err)
	}
	user, _ := store.GetUser(ctx, "rich")
	if user.Coins != 50 {
		t.Fatalf("expected 50 coins left, got %d", user.Coins)
	}

	if _, _, err := store.EnterParticipant(ctx, "s1", "poor", 100, time.Now()); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := store.GetParticipant(ctx, "s1", "poor"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected no participant for poor user, got %v", err)
	}
}

func TestAdvanceStatusIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateSession(ctx, domain.Session{ID: "s1", Status: domain.StatusNotStarted})

	ok, err := store.AdvanceStatus(ctx, "s1", domain.StatusStarted, domain.StatusEnded, time.Now())
	if err != nil || ok {
		t.Fatalf("expected stale transition to be refused, ok=%v err=%v", ok, err)
	}
	ok, _ = store.AdvanceStatus(ctx, "s1", domain.StatusNotStarted, domain.StatusStarted, time.Now())
	if !ok {
		t.Fatalf("expected start transition")
	}
	if _, err := store.AdvanceStatus(ctx, "missing", domain.StatusNotStarted, domain.StatusStarted, time.Now()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestSnapshotsAndAttemptsAreCreatedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	created, _ := store.CreateLeaderboard(ctx, domain.LeaderboardSnapshot{SessionID: "s1"})
	again, _ := store.CreateLeaderboard(ctx, domain.LeaderboardSnapshot{SessionID: "s1"})
	if !created || again {
		t.Fatalf("expected one snapshot, created=%v again=%v", created, again)
	}

	created, _ = store.CreateAttempt(ctx, domain.FinalAttempt{UserID: "u1", QuizID: "quiz-1", Score: 2})
	again, _ = store.CreateAttempt(ctx, domain.FinalAttempt{UserID: "u1", QuizID: "quiz-1", Score: 9})
	if !created || again {
		t.Fatalf("expected one attempt, created=%v again=%v", created, again)
	}
	attempt, _ := store.GetAttempt(ctx, "u1", "quiz-1")
	if attempt.Score != 2 {
		t.Fatalf("expected first attempt kept, got %+v", attempt)
	}
}
