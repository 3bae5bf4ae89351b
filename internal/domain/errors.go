package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap one of these so callers can classify
// with errors.Is without knowing every individual error.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrUserNotFound is returned when the user is unknown to the balance store.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrParticipantNotFound is returned by stores when no (session, user) record exists.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrAttemptNotFound is returned by stores when the user never finished the quiz.
	ErrAttemptNotFound = fmt.Errorf("final attempt %w", ErrNotFound)
	// ErrLeaderboardNotFound is returned while a session has no snapshot yet.
	ErrLeaderboardNotFound = fmt.Errorf("leaderboard %w", ErrNotFound)

	// ErrNotJoined is returned when a user submits before joining.
	ErrNotJoined = fmt.Errorf("%w: participant has not joined", ErrInvalidState)
	// ErrNoQuestions is returned when a participant has no question left to deliver.
	ErrNoQuestions = fmt.Errorf("%w: no questions available", ErrInvalidState)
	// ErrOutOfOrder is returned when an unanswered question is not the current one.
	ErrOutOfOrder = fmt.Errorf("%w: question is not the current question", ErrInvalidState)
	// ErrEntryRequired is returned when joining a paid session without passing entry.
	ErrEntryRequired = fmt.Errorf("%w: entry required", ErrInvalidState)
	// ErrLeaderboardExists is returned when a snapshot was already computed.
	ErrLeaderboardExists = fmt.Errorf("%w: leaderboard already computed", ErrInvalidState)
	// ErrInvalidWindow is returned for malformed clock times.
	ErrInvalidWindow = errors.New("invalid time window")
	// ErrInvalidInput is returned for malformed admin requests.
	ErrInvalidInput = errors.New("invalid input")
)
