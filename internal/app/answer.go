package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
)

// AnswerOutcome holds exactly one of Next or Completed.
type AnswerOutcome struct {
	Next      *QuestionView
	Completed *CompletionResult
	// Duplicate is set when the question had already been answered and
	// nothing was scored.
	Duplicate bool
	// Leaderboard is set when this answer settled the session. The caller
	// delivers Completed to the participant first and then calls Announce.
	Leaderboard *domain.LeaderboardSnapshot
}

// SubmitAnswer scores one answer and advances the participant.
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID, userID, questionID, answer string) (AnswerOutcome, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	participant, err := s.store.GetParticipant(ctx, sessionID, userID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return AnswerOutcome{}, domain.ErrNotJoined
	}
	if err != nil {
		return AnswerOutcome{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	position := quiz.IndexOf(questionID)
	if position < 0 {
		return AnswerOutcome{}, domain.ErrQuestionNotFound
	}

	if participant.HasAnswered(questionID) {
		metrics.AnswersTotal.WithLabelValues("duplicate").Inc()
		return s.advance(ctx, session, quiz, participant, true)
	}
	if position != participant.CurrentIndex {
		return AnswerOutcome{}, domain.ErrOutOfOrder
	}

	question := quiz.Questions[position]
	correct := answer == question.CorrectAnswer()
	coins := 0
	if correct {
		coins = s.opts.PerCorrectCoins
	}

	updated, applied, err := s.store.RecordAnswer(ctx, AnswerRecord{
		SessionID:  sessionID,
		UserID:     userID,
		QuestionID: questionID,
		Answer:     answer,
		Position:   position,
		Correct:    correct,
		Coins:      coins,
		Total:      len(quiz.Questions),
		At:         s.now(),
	})
	if err != nil {
		return AnswerOutcome{}, err
	}
	if !applied {
		// A concurrent delivery of the same answer won the race.
		metrics.AnswersTotal.WithLabelValues("duplicate").Inc()
		return s.advance(ctx, session, quiz, updated, true)
	}

	if correct {
		metrics.AnswersTotal.WithLabelValues("correct").Inc()
	} else {
		metrics.AnswersTotal.WithLabelValues("wrong").Inc()
	}
	s.log.Debug("answer recorded",
		zap.String("sessionId", sessionID),
		zap.String("userId", userID),
		zap.String("questionId", questionID),
		zap.Bool("correct", correct),
		zap.Int("coins", coins),
	)

	return s.advance(ctx, session, quiz, updated, false)
}

// advance delivers the question at the participant's current index, or hands
// a completed participant to the completion engine.
func (s *QuizService) advance(ctx context.Context, session domain.Session, quiz domain.Quiz, participant domain.Participant, duplicate bool) (AnswerOutcome, error) {
	if participant.Completed {
		result, snapshot, err := s.complete(ctx, session, quiz, participant)
		if err != nil {
			return AnswerOutcome{}, err
		}
		return AnswerOutcome{Completed: &result, Duplicate: duplicate, Leaderboard: snapshot}, nil
	}

	question, ok := quiz.QuestionAt(participant.CurrentIndex)
	if !ok {
		return AnswerOutcome{}, domain.ErrNoQuestions
	}
	return AnswerOutcome{
		Next:      newQuestionView(question, participant.CurrentIndex, len(quiz.Questions)),
		Duplicate: duplicate,
	}, nil
}
