package domain

import (
	"fmt"
	"time"
)

// SessionStatus moves strictly forward: not_started -> started -> ended.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not_started"
	StatusStarted    SessionStatus = "started"
	StatusEnded      SessionStatus = "ended"
)

// AccessPolicy decides whether joining a session costs coins.
type AccessPolicy string

const (
	AccessFree AccessPolicy = "free"
	AccessPaid AccessPolicy = "paid"
)

// Session is one scheduled multiplayer round bound to a quiz and a daily window.
type Session struct {
	ID        string        `json:"id"`
	QuizID    string        `json:"quizId"`
	HostID    string        `json:"hostId"`
	Access    AccessPolicy  `json:"access"`
	EntryCost int           `json:"entryCost"`
	Window    Window        `json:"window"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// AnsweredQuestion is one entry of a participant's answered list.
type AnsweredQuestion struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// Participant is the persisted progress of one user within one session.
type Participant struct {
	SessionID    string             `json:"sessionId"`
	UserID       string             `json:"userId"`
	CurrentIndex int                `json:"currentIndex"`
	Score        int                `json:"score"`
	CoinsEarned  int                `json:"coinsEarned"`
	Completed    bool               `json:"completed"`
	CompletedAt  time.Time          `json:"completedAt"`
	Answers      []AnsweredQuestion `json:"answers"`
	JoinedAt     time.Time          `json:"joinedAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// HasAnswered reports whether questionID is already in the answered list.
func (p Participant) HasAnswered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// QuestionResult is the per-question correctness breakdown.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Question   string `json:"question"`
	Submitted  string `json:"submittedAnswer"`
	Correct    string `json:"correctAnswer"`
	IsCorrect  bool   `json:"isCorrect"`
}

// FinalAttempt is the durable one-per-(user, quiz) completion record.
type FinalAttempt struct {
	UserID      string           `json:"userId"`
	QuizID      string           `json:"quizId"`
	SessionID   string           `json:"sessionId"`
	Score       int              `json:"score"`
	CoinsEarned int              `json:"coinsEarned"`
	Breakdown   []QuestionResult `json:"breakdown"`
	CompletedAt time.Time        `json:"completedAt"`
	Rank        int              `json:"rank"`
}

// LeaderboardEntry is one ranked row of a snapshot.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
	Coins       int    `json:"coinsEarned"`
}

// LeaderboardSnapshot is the immutable once-per-session ranking.
type LeaderboardSnapshot struct {
	SessionID string             `json:"sessionId"`
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	CreatedAt time.Time          `json:"createdAt"`
}

// RankOf returns the rank of userID, or 0 when absent.
func (l LeaderboardSnapshot) RankOf(userID string) int {
	for _, e := range l.Entries {
		if e.UserID == userID {
			return e.Rank
		}
	}
	return 0
}

// User is the slice of the account record this service needs.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Coins int    `json:"coins"`
}

// Question is a multiple choice question; CorrectIndex points into Options.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// CorrectAnswer returns the option at CorrectIndex, or "" when out of range.
func (q Question) CorrectAnswer() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionAt returns the question at index i.
func (q Quiz) QuestionAt(i int) (Question, bool) {
	if i < 0 || i >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[i], true
}

// IndexOf returns the position of questionID, or -1.
func (q Quiz) IndexOf(questionID string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// Validate checks for unique question IDs and that every correct index
// points at an option.
func (q Quiz) Validate() error {
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("%w: quiz %s question %d has no id", ErrInvalidInput, q.ID, i)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: quiz %s repeats question %s", ErrInvalidInput, q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return fmt.Errorf("%w: quiz %s question %s has no correct option", ErrInvalidInput, q.ID, question.ID)
		}
	}
	return nil
}
