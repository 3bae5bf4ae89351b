package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence keeps a per-session connection counter in Redis so other
// instances and operators can see which rooms are live. The counter carries a
// TTL that is refreshed on every join and leave, so a crashed instance cannot leave a
// room marked live forever.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

// Join increments the room counter.
func (p *Presence) Join(ctx context.Context, sessionID string) error {
	pipe := p.client.TxPipeline()
	pipe.Incr(ctx, roomKey(sessionID))
	if p.ttl > 0 {
		pipe.Expire(ctx, roomKey(sessionID), p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Leave decrements the room counter, refreshing its TTL while members remain,
// and removes the key once the room is empty.
func (p *Presence) Leave(ctx context.Context, sessionID string) error {
	n, err := p.client.Decr(ctx, roomKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return p.client.Del(ctx, roomKey(sessionID)).Err()
	}
	if p.ttl > 0 {
		return p.client.Expire(ctx, roomKey(sessionID), p.ttl).Err()
	}
	return nil
}

// Count returns the number of live connections recorded for a session.
func (p *Presence) Count(ctx context.Context, sessionID string) (int64, error) {
	n, err := p.client.Get(ctx, roomKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func roomKey(sessionID string) string {
	return "quiz:room:" + sessionID
}
