package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions"`

	ID          string    `bun:"id,pk"`
	QuizID      string    `bun:"quiz_id"`
	HostID      string    `bun:"host_id"`
	Access      string    `bun:"access"`
	EntryCost   int       `bun:"entry_cost"`
	StartMinute int       `bun:"start_minute"`
	EndMinute   int       `bun:"end_minute"`
	Status      string    `bun:"status"`
	CreatedAt   time.Time `bun:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

func sessionFromDomain(s domain.Session) sessionRow {
	return sessionRow{
		ID:          s.ID,
		QuizID:      s.QuizID,
		HostID:      s.HostID,
		Access:      string(s.Access),
		EntryCost:   s.EntryCost,
		StartMinute: int(s.Window.Start),
		EndMinute:   int(s.Window.End),
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (r sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:        r.ID,
		QuizID:    r.QuizID,
		HostID:    r.HostID,
		Access:    domain.AccessPolicy(r.Access),
		EntryCost: r.EntryCost,
		Window: domain.Window{
			Start: domain.TimeOfDay(r.StartMinute),
			End:   domain.TimeOfDay(r.EndMinute),
		},
		Status:    domain.SessionStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants"`

	SessionID    string    `bun:"session_id,pk"`
	UserID       string    `bun:"user_id,pk"`
	CurrentIndex int       `bun:"current_index"`
	Score        int       `bun:"score"`
	CoinsEarned  int       `bun:"coins_earned"`
	Completed    bool      `bun:"completed"`
	CompletedAt  time.Time `bun:"completed_at,nullzero"`
	JoinedAt     time.Time `bun:"joined_at"`
	UpdatedAt    time.Time `bun:"updated_at"`
}

func (r participantRow) toDomain(answers []answerRow) domain.Participant {
	p := domain.Participant{
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		CurrentIndex: r.CurrentIndex,
		Score:        r.Score,
		CoinsEarned:  r.CoinsEarned,
		Completed:    r.Completed,
		CompletedAt:  r.CompletedAt,
		JoinedAt:     r.JoinedAt,
		UpdatedAt:    r.UpdatedAt,
		Answers:      make([]domain.AnsweredQuestion, 0, len(answers)),
	}
	for _, a := range answers {
		p.Answers = append(p.Answers, domain.AnsweredQuestion{QuestionID: a.QuestionID, Answer: a.Answer})
	}
	return p
}

type answerRow struct {
	bun.BaseModel `bun:"table:participant_answers"`

	SessionID  string    `bun:"session_id,pk"`
	UserID     string    `bun:"user_id,pk"`
	QuestionID string    `bun:"question_id,pk"`
	Answer     string    `bun:"answer"`
	Position   int       `bun:"position"`
	AnsweredAt time.Time `bun:"answered_at"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:final_attempts"`

	UserID      string                  `bun:"user_id,pk"`
	QuizID      string                  `bun:"quiz_id,pk"`
	SessionID   string                  `bun:"session_id"`
	Score       int                     `bun:"score"`
	CoinsEarned int                     `bun:"coins_earned"`
	Breakdown   []domain.QuestionResult `bun:"breakdown,type:jsonb"`
	CompletedAt time.Time               `bun:"completed_at"`
	Rank        int                     `bun:"rank"`
}

func attemptFromDomain(a domain.FinalAttempt) attemptRow {
	breakdown := a.Breakdown
	if breakdown == nil {
		breakdown = []domain.QuestionResult{}
	}
	return attemptRow{
		UserID:      a.UserID,
		QuizID:      a.QuizID,
		SessionID:   a.SessionID,
		Score:       a.Score,
		CoinsEarned: a.CoinsEarned,
		Breakdown:   breakdown,
		CompletedAt: a.CompletedAt,
		Rank:        a.Rank,
	}
}

func (r attemptRow) toDomain() domain.FinalAttempt {
	return domain.FinalAttempt{
		UserID:      r.UserID,
		QuizID:      r.QuizID,
		SessionID:   r.SessionID,
		Score:       r.Score,
		CoinsEarned: r.CoinsEarned,
		Breakdown:   r.Breakdown,
		CompletedAt: r.CompletedAt,
		Rank:        r.Rank,
	}
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboards"`

	SessionID string                    `bun:"session_id,pk"`
	QuizID    string                    `bun:"quiz_id"`
	Entries   []domain.LeaderboardEntry `bun:"entries,type:jsonb"`
	CreatedAt time.Time                 `bun:"created_at"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID    string `bun:"id,pk"`
	Name  string `bun:"name"`
	Coins int    `bun:"coins"`
}
