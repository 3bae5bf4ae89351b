package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionRepository is the Session Registry.
type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	ListSessionsByStatus(ctx context.Context, statuses ...domain.SessionStatus) ([]domain.Session, error)
	CreateSession(ctx context.Context, session domain.Session) error
	// UpdateSession persists admin edits (window, access, entry cost). Status is left untouched.
	UpdateSession(ctx context.Context, session domain.Session) error
	// AdvanceStatus moves a session from one status to the next and reports
	// false when the stored status no longer equals from.
	AdvanceStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, at time.Time) (bool, error)
}

// AnswerRecord is everything a store needs to apply one answer atomically.
type AnswerRecord struct {
	SessionID  string
	UserID     string
	QuestionID string
	Answer     string
	// Position is the question's index in the quiz; the participant's
	// CurrentIndex must equal it for the answer to apply.
	Position int
	Correct  bool
	Coins    int
	Total    int
	At       time.Time
}

// ParticipantRepository is the Participant Store.
type ParticipantRepository interface {
	GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	GetOrCreateParticipant(ctx context.Context, sessionID, userID string, at time.Time) (domain.Participant, error)
	// EnterParticipant creates the participant and debits cost from the user in
	// one unit. An existing participant is returned with created=false and no charge.
	EnterParticipant(ctx context.Context, sessionID, userID string, cost int, at time.Time) (domain.Participant, bool, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// RecordAnswer appends the answer, adjusts score/coins, advances the
	// index and credits the user's balance as one unit. applied is false, and
	// nothing changes, when the question is already in the answered list.
	RecordAnswer(ctx context.Context, rec AnswerRecord) (domain.Participant, bool, error)
}

// AttemptRepository stores FinalAttempts, unique per (user, quiz).
type AttemptRepository interface {
	GetAttempt(ctx context.Context, userID, quizID string) (domain.FinalAttempt, error)
	CreateAttempt(ctx context.Context, attempt domain.FinalAttempt) (bool, error)
	SetAttemptRank(ctx context.Context, userID, quizID string, rank int) error
}

// LeaderboardRepository stores snapshots, unique per session.
type LeaderboardRepository interface {
	GetLeaderboard(ctx context.Context, sessionID string) (domain.LeaderboardSnapshot, error)
	CreateLeaderboard(ctx context.Context, snapshot domain.LeaderboardSnapshot) (bool, error)
}

// UserRepository is the user balance store. Credit is an atomic increment.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	Credit(ctx context.Context, userID string, amount int) error
}

// Store bundles every persisted collection the engine touches.
type Store interface {
	SessionRepository
	ParticipantRepository
	AttemptRepository
	LeaderboardRepository
	UserRepository
}

// Broadcaster delivers a message to every channel registered in a session's room.
type Broadcaster interface {
	Broadcast(sessionID, msgType string, payload any)
}

// EventPublisher forwards domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Outbound event types shared by the transport and the room broadcasts.
const (
	EventQuestion         = "question"
	EventAlreadyAttempted = "alreadyAttempted"
	EventQuizEnd          = "quizEnd"
	EventSessionStarted   = "sessionStarted"
	EventSessionEnded     = "sessionEnded"
	EventError            = "error"
)

// Options tunes the reward rules.
type Options struct {
	PerCorrectCoins       int
	LeaderboardMultiplier int
	LeaderboardTop        int
}

// DefaultOptions returns 100 coins per correct answer and score x 100 for the top 5.
func DefaultOptions() Options {
	return Options{
		PerCorrectCoins:       100,
		LeaderboardMultiplier: 100,
		LeaderboardTop:        5,
	}
}

// QuizService contains the core session use cases: entry, join, answer
// processing, completion and leaderboard settlement.
type QuizService struct {
	store   Store
	quizzes QuizRepository
	rooms   Broadcaster
	events  EventPublisher
	log     *zap.Logger
	opts    Options
	now     func() time.Time
}

func NewQuizService(store Store, quizzes QuizRepository, rooms Broadcaster, events EventPublisher, log *zap.Logger, opts Options) *QuizService {
	if rooms == nil {
		rooms = nopBroadcaster{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{
		store:   store,
		quizzes: quizzes,
		rooms:   rooms,
		events:  events,
		log:     log,
		opts:    opts,
		now:     time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *QuizService) WithClock(now func() time.Time) *QuizService {
	s.now = now
	return s
}

// QuestionView is what a participant sees; the correct index never leaves the server.
type QuestionView struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
}

func newQuestionView(q domain.Question, index, total int) *QuestionView {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return &QuestionView{
		QuestionID: q.ID,
		Text:       q.Text,
		Options:    options,
		Index:      index,
		Total:      total,
	}
}

// AlreadyAttempted is returned to users who already finished the quiz.
type AlreadyAttempted struct {
	Score       int                       `json:"score"`
	CoinsEarned int                       `json:"coinsEarned"`
	Rank        int                       `json:"rank"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// JoinResult holds exactly one of Question or AlreadyAttempted.
type JoinResult struct {
	Question         *QuestionView
	AlreadyAttempted *AlreadyAttempted
}

// Join resolves the participant and returns the question at its current index.
func (s *QuizService) Join(ctx context.Context, sessionID, userID string) (JoinResult, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return JoinResult{}, err
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return JoinResult{}, err
	}

	attempt, err := s.store.GetAttempt(ctx, userID, session.QuizID)
	switch {
	case err == nil:
		already, err := s.alreadyAttempted(ctx, session, attempt)
		if err != nil {
			return JoinResult{}, err
		}
		return JoinResult{AlreadyAttempted: already}, nil
	case !errors.Is(err, domain.ErrAttemptNotFound):
		return JoinResult{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return JoinResult{}, err
	}

	participant, err := s.participantFor(ctx, session, userID)
	if err != nil {
		return JoinResult{}, err
	}

	question, ok := quiz.QuestionAt(participant.CurrentIndex)
	if !ok {
		return JoinResult{}, domain.ErrNoQuestions
	}
	return JoinResult{Question: newQuestionView(question, participant.CurrentIndex, len(quiz.Questions))}, nil
}

// participantFor fetches or lazily creates the participant. Paid sessions
// only create participants through Enter, after the entry cost is paid.
func (s *QuizService) participantFor(ctx context.Context, session domain.Session, userID string) (domain.Participant, error) {
	if session.Access == domain.AccessPaid {
		participant, err := s.store.GetParticipant(ctx, session.ID, userID)
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.Participant{}, domain.ErrEntryRequired
		}
		return participant, err
	}
	return s.store.GetOrCreateParticipant(ctx, session.ID, userID, s.now())
}

func (s *QuizService) alreadyAttempted(ctx context.Context, session domain.Session, attempt domain.FinalAttempt) (*AlreadyAttempted, error) {
	already := &AlreadyAttempted{
		Score:       attempt.Score,
		CoinsEarned: attempt.CoinsEarned,
		Rank:        attempt.Rank,
	}
	snapshot, err := s.store.GetLeaderboard(ctx, session.ID)
	switch {
	case err == nil:
		if rank := snapshot.RankOf(attempt.UserID); rank > 0 {
			already.Rank = rank
		}
		already.Leaderboard = snapshot.Entries
	case !errors.Is(err, domain.ErrLeaderboardNotFound):
		return nil, err
	}
	return already, nil
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, string, any) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }
