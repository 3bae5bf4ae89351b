package app

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
)

// Routing keys for published domain events.
const (
	TopicQuizCompleted        = "quiz.completed"
	TopicLeaderboardPublished = "leaderboard.published"
	TopicSessionStarted       = "session.started"
	TopicSessionEnded         = "session.ended"
)

// CompletionResult is the private quizEnd payload for one participant.
type CompletionResult struct {
	TotalQuestions    int                     `json:"totalQuestions"`
	CorrectAnswers    int                     `json:"correctAnswers"`
	WrongAnswers      int                     `json:"wrongAnswers"`
	Score             int                     `json:"score"`
	CoinsEarned       int                     `json:"coinsEarned"`
	QuestionBreakdown []domain.QuestionResult `json:"questionBreakdown"`
}

// LeaderboardBroadcast is the room-wide quizEnd payload.
type LeaderboardBroadcast struct {
	SessionID   string                    `json:"sessionId"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// complete persists the final attempt, builds the private result and settles
// the session once everybody is done. Every step is idempotent, so duplicate
// completion signals are harmless. The snapshot is returned only to the caller
// that created it and has not been announced yet.
func (s *QuizService) complete(ctx context.Context, session domain.Session, quiz domain.Quiz, participant domain.Participant) (CompletionResult, *domain.LeaderboardSnapshot, error) {
	breakdown := Breakdown(quiz, participant.Answers)

	completedAt := participant.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}
	attempt := domain.FinalAttempt{
		UserID:      participant.UserID,
		QuizID:      session.QuizID,
		SessionID:   session.ID,
		Score:       participant.Score,
		CoinsEarned: participant.CoinsEarned,
		Breakdown:   breakdown,
		CompletedAt: completedAt,
	}
	created, err := s.store.CreateAttempt(ctx, attempt)
	if err != nil {
		return CompletionResult{}, nil, err
	}
	if created {
		metrics.CompletionsTotal.Inc()
		s.publish(ctx, TopicQuizCompleted, attempt)
	}

	correct := 0
	for _, r := range breakdown {
		if r.IsCorrect {
			correct++
		}
	}
	result := CompletionResult{
		TotalQuestions:    len(quiz.Questions),
		CorrectAnswers:    correct,
		WrongAnswers:      len(breakdown) - correct,
		Score:             participant.Score,
		CoinsEarned:       participant.CoinsEarned,
		QuestionBreakdown: breakdown,
	}

	snapshot, err := s.settle(ctx, session.ID)
	if err != nil && !errors.Is(err, domain.ErrLeaderboardExists) {
		return CompletionResult{}, nil, err
	}
	return result, snapshot, nil
}

// Settle computes the session's leaderboard when every participant has
// completed and announces it to the room. It returns (nil, nil) while some
// participant is still playing and ErrLeaderboardExists when another caller
// already settled the session.
func (s *QuizService) Settle(ctx context.Context, sessionID string) (*domain.LeaderboardSnapshot, error) {
	snapshot, err := s.settle(ctx, sessionID)
	if err != nil || snapshot == nil {
		return nil, err
	}
	s.Announce(ctx, *snapshot)
	return snapshot, nil
}

// settle persists the snapshot and distributes rewards without announcing it.
func (s *QuizService) settle(ctx context.Context, sessionID string) (*domain.LeaderboardSnapshot, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, nil
	}
	for _, p := range participants {
		if !p.Completed {
			return nil, nil
		}
	}

	if _, err := s.store.GetLeaderboard(ctx, sessionID); err == nil {
		return nil, domain.ErrLeaderboardExists
	} else if !errors.Is(err, domain.ErrLeaderboardNotFound) {
		return nil, err
	}

	names := make(map[string]string, len(participants))
	for _, p := range participants {
		user, err := s.store.GetUser(ctx, p.UserID)
		switch {
		case err == nil:
			names[p.UserID] = user.Name
		case errors.Is(err, domain.ErrUserNotFound):
			names[p.UserID] = p.UserID
		default:
			return nil, err
		}
	}

	snapshot := domain.LeaderboardSnapshot{
		SessionID: sessionID,
		QuizID:    session.QuizID,
		Entries:   RankParticipants(participants, names, s.opts),
		CreatedAt: s.now(),
	}
	created, err := s.store.CreateLeaderboard(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, domain.ErrLeaderboardExists
	}
	metrics.LeaderboardsTotal.Inc()

	// Only the caller that created the snapshot distributes rewards. Failures
	// here are logged; the snapshot stays authoritative.
	for _, entry := range snapshot.Entries {
		if entry.Coins > 0 {
			if err := s.store.Credit(ctx, entry.UserID, entry.Coins); err != nil {
				s.log.Error("credit leaderboard reward",
					zap.String("sessionId", sessionID),
					zap.String("userId", entry.UserID),
					zap.Int("coins", entry.Coins),
					zap.Error(err),
				)
			} else {
				metrics.RewardCoinsTotal.Add(float64(entry.Coins))
			}
		}
		if err := s.store.SetAttemptRank(ctx, entry.UserID, session.QuizID, entry.Rank); err != nil && !errors.Is(err, domain.ErrAttemptNotFound) {
			s.log.Warn("stamp attempt rank",
				zap.String("sessionId", sessionID),
				zap.String("userId", entry.UserID),
				zap.Error(err),
			)
		}
	}

	return &snapshot, nil
}

// Announce broadcasts a settled leaderboard to the session's room as quizEnd
// and publishes it downstream.
func (s *QuizService) Announce(ctx context.Context, snapshot domain.LeaderboardSnapshot) {
	s.rooms.Broadcast(snapshot.SessionID, EventQuizEnd, LeaderboardBroadcast{
		SessionID:   snapshot.SessionID,
		Leaderboard: snapshot.Entries,
	})
	s.publish(ctx, TopicLeaderboardPublished, snapshot)
	s.log.Info("leaderboard published",
		zap.String("sessionId", snapshot.SessionID),
		zap.Int("participants", len(snapshot.Entries)),
	)
}

// RankParticipants orders by score descending, then earlier completion, then
// user ID, assigns ranks 1..N and allocates score x multiplier coins to the
// first opts.LeaderboardTop entries.
func RankParticipants(participants []domain.Participant, names map[string]string, opts Options) []domain.LeaderboardEntry {
	sorted := make([]domain.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].CompletedAt.Equal(sorted[j].CompletedAt) {
			return sorted[i].CompletedAt.Before(sorted[j].CompletedAt)
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		name := names[p.UserID]
		if name == "" {
			name = p.UserID
		}
		coins := 0
		if i < opts.LeaderboardTop {
			coins = p.Score * opts.LeaderboardMultiplier
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      p.UserID,
			DisplayName: name,
			Score:       p.Score,
			Rank:        i + 1,
			Coins:       coins,
		})
	}
	return entries
}

// Breakdown pairs every answered question with its canonical answer, in answer order.
func Breakdown(quiz domain.Quiz, answers []domain.AnsweredQuestion) []domain.QuestionResult {
	results := make([]domain.QuestionResult, 0, len(answers))
	for _, a := range answers {
		result := domain.QuestionResult{
			QuestionID: a.QuestionID,
			Submitted:  a.Answer,
		}
		if i := quiz.IndexOf(a.QuestionID); i >= 0 {
			q := quiz.Questions[i]
			result.Question = q.Text
			result.Correct = q.CorrectAnswer()
			result.IsCorrect = a.Answer == result.Correct
		}
		results = append(results, result)
	}
	return results
}

func (s *QuizService) publish(ctx context.Context, topic string, payload any) {
	if err := s.events.Publish(ctx, topic, payload); err != nil {
		s.log.Warn("publish event", zap.String("topic", topic), zap.Error(err))
	}
}
