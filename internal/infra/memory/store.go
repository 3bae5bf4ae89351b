package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. A single mutex makes
// every method one atomic unit, which mirrors the transactional guarantees
// of the Postgres store.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	participants map[participantKey]*domain.Participant
	attempts     map[attemptKey]domain.FinalAttempt
	leaderboards map[string]domain.LeaderboardSnapshot
	users        map[string]domain.User
}

type participantKey struct {
	sessionID string
	userID    string
}

type attemptKey struct {
	userID string
	quizID string
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.Session),
		participants: make(map[participantKey]*domain.Participant),
		attempts:     make(map[attemptKey]domain.FinalAttempt),
		leaderboards: make(map[string]domain.LeaderboardSnapshot),
		users:        make(map[string]domain.User),
	}
}

// PutUser seeds or replaces a user record.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) ListSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) ListSessionsByStatus(_ context.Context, statuses ...domain.SessionStatus) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		for _, status := range statuses {
			if session.Status == status {
				out = append(out, session)
				break
			}
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) UpdateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	stored.Window = session.Window
	stored.Access = session.Access
	stored.EntryCost = session.EntryCost
	stored.UpdatedAt = session.UpdatedAt
	s.sessions[session.ID] = stored
	return nil
}

func (s *Store) AdvanceStatus(_ context.Context, sessionID string, from, to domain.SessionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.Status != from {
		return false, nil
	}
	session.Status = to
	session.UpdatedAt = at
	s.sessions[sessionID] = session
	return true, nil
}

func (s *Store) GetParticipant(_ context.Context, sessionID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey{sessionID, userID}]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (s *Store) GetOrCreateParticipant(_ context.Context, sessionID, userID string, at time.Time) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneParticipant(s.getOrCreateLocked(sessionID, userID, at)), nil
}

func (s *Store) EnterParticipant(_ context.Context, sessionID, userID string, cost int, at time.Time) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[participantKey{sessionID, userID}]; ok {
		return cloneParticipant(p), false, nil
	}
	user, ok := s.users[userID]
	if !ok {
		return domain.Participant{}, false, domain.ErrUserNotFound
	}
	if user.Coins < cost {
		return domain.Participant{}, false, domain.ErrInsufficientBalance
	}
	user.Coins -= cost
	s.users[userID] = user
	return cloneParticipant(s.getOrCreateLocked(sessionID, userID, at)), true, nil
}

func (s *Store) getOrCreateLocked(sessionID, userID string, at time.Time) *domain.Participant {
	key := participantKey{sessionID, userID}
	if p, ok := s.participants[key]; ok {
		return p
	}
	p := &domain.Participant{
		SessionID: sessionID,
		UserID:    userID,
		JoinedAt:  at,
		UpdatedAt: at,
	}
	s.participants[key] = p
	return p
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for key, p := range s.participants {
		if key.sessionID == sessionID {
			out = append(out, cloneParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) RecordAnswer(_ context.Context, rec app.AnswerRecord) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{rec.SessionID, rec.UserID}]
	if !ok {
		return domain.Participant{}, false, domain.ErrParticipantNotFound
	}
	if p.HasAnswered(rec.QuestionID) {
		return cloneParticipant(p), false, nil
	}
	if p.CurrentIndex != rec.Position || p.Completed {
		return domain.Participant{}, false, domain.ErrOutOfOrder
	}
	if rec.Correct && rec.Coins > 0 {
		user, ok := s.users[rec.UserID]
		if !ok {
			return domain.Participant{}, false, domain.ErrUserNotFound
		}
		user.Coins += rec.Coins
		s.users[rec.UserID] = user
	}

	p.Answers = append(p.Answers, domain.AnsweredQuestion{QuestionID: rec.QuestionID, Answer: rec.Answer})
	if rec.Correct {
		p.Score++
		p.CoinsEarned += rec.Coins
	}
	p.CurrentIndex++
	if p.CurrentIndex >= rec.Total {
		p.Completed = true
		p.CompletedAt = rec.At
	}
	p.UpdatedAt = rec.At
	return cloneParticipant(p), true, nil
}

func (s *Store) GetAttempt(_ context.Context, userID, quizID string) (domain.FinalAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptKey{userID, quizID}]
	if !ok {
		return domain.FinalAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.FinalAttempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{attempt.UserID, attempt.QuizID}
	if _, ok := s.attempts[key]; ok {
		return false, nil
	}
	s.attempts[key] = attempt
	return true, nil
}

func (s *Store) SetAttemptRank(_ context.Context, userID, quizID string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{userID, quizID}
	attempt, ok := s.attempts[key]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.Rank = rank
	s.attempts[key] = attempt
	return nil
}

func (s *Store) GetLeaderboard(_ context.Context, sessionID string) (domain.LeaderboardSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.leaderboards[sessionID]
	if !ok {
		return domain.LeaderboardSnapshot{}, domain.ErrLeaderboardNotFound
	}
	return snapshot, nil
}

func (s *Store) CreateLeaderboard(_ context.Context, snapshot domain.LeaderboardSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leaderboards[snapshot.SessionID]; ok {
		return false, nil
	}
	entries := make([]domain.LeaderboardEntry, len(snapshot.Entries))
	copy(entries, snapshot.Entries)
	snapshot.Entries = entries
	s.leaderboards[snapshot.SessionID] = snapshot
	return true, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) Credit(_ context.Context, userID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Coins += amount
	s.users[userID] = user
	return nil
}

func cloneParticipant(p *domain.Participant) domain.Participant {
	out := *p
	out.Answers = make([]domain.AnsweredQuestion, len(p.Answers))
	copy(out.Answers, p.Answers)
	return out
}

func sortSessions(sessions []domain.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
