package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// OpenDB returns a bun handle over pgdriver for dsn.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store implements app.Store on Postgres. Every multi-row change runs in one
// transaction; uniqueness of answers, attempts and snapshots is enforced by
// primary keys so concurrent writers cannot double-apply.
type Store struct {
	db *bun.DB
}

var _ app.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var rows []sessionRow
	if err := s.db.NewSelect().Model(&rows).Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessionsToDomain(rows), nil
}

func (s *Store) ListSessionsByStatus(ctx context.Context, statuses ...domain.SessionStatus) ([]domain.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).
		Where("status IN (?)", bun.In(names)).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	return sessionsToDomain(rows), nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	row := sessionFromDomain(session)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session) error {
	row := sessionFromDomain(session)
	res, err := s.db.NewUpdate().Model(&row).
		Column("access", "entry_cost", "start_minute", "end_minute", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) AdvanceStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", at).
		Where("id = ?", sessionID).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("advance session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", sessionID, err)
	}
	if !exists {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}

func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	return loadParticipant(ctx, s.db, sessionID, userID, false)
}

func (s *Store) GetOrCreateParticipant(ctx context.Context, sessionID, userID string, at time.Time) (domain.Participant, error) {
	row := newParticipantRow(sessionID, userID, at)
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (session_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	return loadParticipant(ctx, s.db, sessionID, userID, false)
}

func (s *Store) EnterParticipant(ctx context.Context, sessionID, userID string, cost int, at time.Time) (domain.Participant, bool, error) {
	var (
		participant domain.Participant
		created     bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := newParticipantRow(sessionID, userID, at)
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (session_id, user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = true
			res, err = tx.NewUpdate().Model((*userRow)(nil)).
				Set("coins = coins - ?", cost).
				Where("id = ?", userID).
				Where("coins >= ?", cost).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("debit user %s: %w", userID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				exists, err := tx.NewSelect().Model((*userRow)(nil)).Where("id = ?", userID).Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return domain.ErrUserNotFound
				}
				return domain.ErrInsufficientBalance
			}
		}
		participant, err = loadParticipant(ctx, tx, sessionID, userID, false)
		return err
	})
	if err != nil {
		return domain.Participant{}, false, err
	}
	return participant, created, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	var answers []answerRow
	err = s.db.NewSelect().Model(&answers).
		Where("session_id = ?", sessionID).
		Order("user_id ASC", "position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byUser := make(map[string][]answerRow, len(rows))
	for _, a := range answers {
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(byUser[row.UserID]))
	}
	return out, nil
}

// RecordAnswer locks the participant row, inserts the answer unless that
// question already has one, advances the index only when it still equals
// the answer's position, and credits the answer's coins to the user in the
// same transaction.
func (s *Store) RecordAnswer(ctx context.Context, rec app.AnswerRecord) (domain.Participant, bool, error) {
	var (
		participant domain.Participant
		applied     bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := loadParticipant(ctx, tx, rec.SessionID, rec.UserID, true)
		if err != nil {
			return err
		}

		answer := answerRow{
			SessionID:  rec.SessionID,
			UserID:     rec.UserID,
			QuestionID: rec.QuestionID,
			Answer:     rec.Answer,
			Position:   rec.Position,
			AnsweredAt: rec.At,
		}
		res, err := tx.NewInsert().Model(&answer).
			On("CONFLICT (session_id, user_id, question_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			participant = current
			return nil
		}
		if current.Completed || current.CurrentIndex != rec.Position {
			return domain.ErrOutOfOrder
		}

		scored, coins := 0, 0
		if rec.Correct {
			scored, coins = 1, rec.Coins
		}
		update := tx.NewUpdate().Model((*participantRow)(nil)).
			Set("current_index = current_index + 1").
			Set("score = score + ?", scored).
			Set("coins_earned = coins_earned + ?", coins).
			Set("updated_at = ?", rec.At).
			Where("session_id = ?", rec.SessionID).
			Where("user_id = ?", rec.UserID).
			Where("current_index = ?", rec.Position)
		if rec.Position+1 >= rec.Total {
			update = update.Set("completed = TRUE").Set("completed_at = ?", rec.At)
		}
		res, err = update.Exec(ctx)
		if err != nil {
			return fmt.Errorf("advance participant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrOutOfOrder
		}
		if coins > 0 {
			res, err = tx.NewUpdate().Model((*userRow)(nil)).
				Set("coins = coins + ?", coins).
				Where("id = ?", rec.UserID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("credit user %s: %w", rec.UserID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrUserNotFound
			}
		}

		participant, err = loadParticipant(ctx, tx, rec.SessionID, rec.UserID, false)
		applied = err == nil
		return err
	})
	if err != nil {
		return domain.Participant{}, false, err
	}
	return participant, applied, nil
}

func (s *Store) GetAttempt(ctx context.Context, userID, quizID string) (domain.FinalAttempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FinalAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.FinalAttempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.FinalAttempt) (bool, error) {
	row := attemptFromDomain(attempt)
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (user_id, quiz_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert attempt: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) SetAttemptRank(ctx context.Context, userID, quizID string, rank int) error {
	res, err := s.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("rank = ?", rank).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rank attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) GetLeaderboard(ctx context.Context, sessionID string) (domain.LeaderboardSnapshot, error) {
	row := new(leaderboardRow)
	err := s.db.NewSelect().Model(row).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardSnapshot{}, domain.ErrLeaderboardNotFound
	}
	if err != nil {
		return domain.LeaderboardSnapshot{}, fmt.Errorf("select leaderboard: %w", err)
	}
	return domain.LeaderboardSnapshot{
		SessionID: row.SessionID,
		QuizID:    row.QuizID,
		Entries:   row.Entries,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) CreateLeaderboard(ctx context.Context, snapshot domain.LeaderboardSnapshot) (bool, error) {
	entries := snapshot.Entries
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	row := leaderboardRow{
		SessionID: snapshot.SessionID,
		QuizID:    snapshot.QuizID,
		Entries:   entries,
		CreatedAt: snapshot.CreatedAt,
	}
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (session_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert leaderboard: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	row := new(userRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return domain.User{ID: row.ID, Name: row.Name, Coins: row.Coins}, nil
}

func (s *Store) Credit(ctx context.Context, userID string, amount int) error {
	res, err := s.db.NewUpdate().Model((*userRow)(nil)).
		Set("coins = coins + ?", amount).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credit user %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// PutUser upserts a user record; the seed command uses it.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	row := userRow{ID: user.ID, Name: user.Name, Coins: user.Coins}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("coins = EXCLUDED.coins").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}

func loadParticipant(ctx context.Context, db bun.IDB, sessionID, userID string, forUpdate bool) (domain.Participant, error) {
	row := new(participantRow)
	q := db.NewSelect().Model(row).
		Where("session_id = ?", sessionID).
		Where("user_id = ?", userID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Participant{}, domain.ErrParticipantNotFound
		}
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	var answers []answerRow
	err := db.NewSelect().Model(&answers).
		Where("session_id = ?", sessionID).
		Where("user_id = ?", userID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select answers: %w", err)
	}
	return row.toDomain(answers), nil
}

func newParticipantRow(sessionID, userID string, at time.Time) participantRow {
	return participantRow{
		SessionID: sessionID,
		UserID:    userID,
		JoinedAt:  at,
		UpdatedAt: at,
	}
}

func sessionsToDomain(rows []sessionRow) []domain.Session {
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
