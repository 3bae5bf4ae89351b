package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// SessionInput is the admin-editable part of a session.
type SessionInput struct {
	QuizID    string              `json:"quizId"`
	HostID    string              `json:"hostId"`
	Access    domain.AccessPolicy `json:"access"`
	EntryCost int                 `json:"entryCost"`
	StartTime string              `json:"startTime"`
	EndTime   string              `json:"endTime"`
}

// TodaySession is a session listed for today with its live window state.
type TodaySession struct {
	domain.Session
	ActiveNow bool `json:"activeNow"`
}

// AdminService backs the administrative session endpoints.
type AdminService struct {
	store   Store
	quizzes QuizRepository
	loc     *time.Location
	now     func() time.Time
}

func NewAdminService(store Store, quizzes QuizRepository, loc *time.Location) *AdminService {
	if loc == nil {
		loc = time.Local
	}
	return &AdminService{store: store, quizzes: quizzes, loc: loc, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *AdminService) WithClock(now func() time.Time) *AdminService {
	s.now = now
	return s
}

func (s *AdminService) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return s.store.ListSessions(ctx)
}

// ListToday returns every session that has not ended, ordered by window start.
func (s *AdminService) ListToday(ctx context.Context) ([]TodaySession, error) {
	sessions, err := s.store.ListSessionsByStatus(ctx, domain.StatusNotStarted, domain.StatusStarted)
	if err != nil {
		return nil, err
	}
	minute := domain.MinuteOf(s.now().In(s.loc))
	today := make([]TodaySession, 0, len(sessions))
	for _, session := range sessions {
		today = append(today, TodaySession{
			Session:   session,
			ActiveNow: session.Status == domain.StatusStarted && session.Window.Contains(minute),
		})
	}
	sort.SliceStable(today, func(i, j int) bool {
		return today[i].Window.Start < today[j].Window.Start
	})
	return today, nil
}

func (s *AdminService) CreateSession(ctx context.Context, in SessionInput) (domain.Session, error) {
	if in.QuizID == "" || in.HostID == "" {
		return domain.Session{}, fmt.Errorf("%w: quizId and hostId are required", domain.ErrInvalidInput)
	}
	window, access, err := validateInput(in)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := s.quizzes.GetQuiz(ctx, in.QuizID); err != nil {
		return domain.Session{}, err
	}

	now := s.now()
	session := domain.Session{
		ID:        uuid.NewString(),
		QuizID:    in.QuizID,
		HostID:    in.HostID,
		Access:    access,
		EntryCost: in.EntryCost,
		Window:    window,
		Status:    domain.StatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// UpdateSession edits the window, access policy and entry cost. The quiz,
// host and status are never changed here.
func (s *AdminService) UpdateSession(ctx context.Context, sessionID string, in SessionInput) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	window, access, err := validateInput(in)
	if err != nil {
		return domain.Session{}, err
	}
	session.Window = window
	session.Access = access
	session.EntryCost = in.EntryCost
	session.UpdatedAt = s.now()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *AdminService) GetLeaderboard(ctx context.Context, sessionID string) (domain.LeaderboardSnapshot, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return domain.LeaderboardSnapshot{}, err
	}
	return s.store.GetLeaderboard(ctx, sessionID)
}

func validateInput(in SessionInput) (domain.Window, domain.AccessPolicy, error) {
	window, err := domain.NewWindow(in.StartTime, in.EndTime)
	if err != nil {
		return domain.Window{}, "", err
	}
	access := in.Access
	if access == "" {
		access = domain.AccessFree
	}
	switch access {
	case domain.AccessFree:
		if in.EntryCost != 0 {
			return domain.Window{}, "", fmt.Errorf("%w: free sessions have no entry cost", domain.ErrInvalidInput)
		}
	case domain.AccessPaid:
		if in.EntryCost <= 0 {
			return domain.Window{}, "", fmt.Errorf("%w: paid sessions need a positive entry cost", domain.ErrInvalidInput)
		}
	default:
		return domain.Window{}, "", fmt.Errorf("%w: unknown access %q", domain.ErrInvalidInput, access)
	}
	return window, access, nil
}
