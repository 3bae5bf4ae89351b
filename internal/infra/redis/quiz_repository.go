package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// QuizLoader fetches quiz content from the question bank (Postgres in production).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches whole quizzes in Redis and falls back to a loader on
// cache miss. Quizzes are stored as JSON under quiz:{quizID}.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Another caller may have filled the cache while we waited.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, err)
		}

		if raw, err := json.Marshal(quiz); err == nil {
			// A failed cache write only costs a reload later.
			_ = r.client.Set(ctx, quizKey(quizID), raw, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate removes the cached copy of a quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, quizKey(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		// redis.Nil is a plain miss; other errors degrade to the loader.
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
