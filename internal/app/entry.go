package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
)

// EntryResult reports what the entry precheck did.
type EntryResult struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Charged   int    `json:"charged"`
}

// Enter is the entry precheck that must pass before joining a paid session.
// It debits the session's entry cost once and creates the participant in the
// same unit; a user without enough coins never gets a participant record.
func (s *QuizService) Enter(ctx context.Context, sessionID, userID string) (EntryResult, error) {
	result := EntryResult{SessionID: sessionID, UserID: userID}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return result, err
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return result, err
	}
	if session.Access != domain.AccessPaid || session.EntryCost <= 0 {
		return result, nil
	}

	// Users who already finished this quiz only get the alreadyAttempted view.
	if _, err := s.store.GetAttempt(ctx, userID, session.QuizID); err == nil {
		return result, nil
	} else if !errors.Is(err, domain.ErrAttemptNotFound) {
		return result, err
	}

	_, created, err := s.store.EnterParticipant(ctx, sessionID, userID, session.EntryCost, s.now())
	if err != nil {
		return result, err
	}
	if created {
		result.Charged = session.EntryCost
		s.log.Info("session entry paid",
			zap.String("sessionId", sessionID),
			zap.String("userId", userID),
			zap.Int("cost", session.EntryCost),
		)
	}
	return result, nil
}
