package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// QuizLoader fetches quiz content from the question bank.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository is a read-through question bank cache. Entries expire after
// a jittered TTL; concurrent misses for one quiz share a single load.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, err)
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached quiz so the next read reloads it.
func (r *QuizRepository) Invalidate(quizID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, quizID)
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations. rand.Rand
// is not safe for concurrent use, so callers hold mu.
func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a loader backed by an in-memory map (tests and demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
