package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pokerbot:session:"

// Redis stores one JSON document per pair. Keys never expire: an abandoned
// session stays until it is replaced or cancelled.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

// NewRedisFromURL parses a redis:// URL and pings the server.
func NewRedisFromURL(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedis(client), nil
}

func (r *Redis) Load(ctx context.Context, contextID, actorID string) (*wizard.Session, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key(contextID, actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s wizard.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *Redis) Save(ctx context.Context, s *wizard.Session) (*wizard.Session, error) {
	c := s.Clone()
	c.UpdatedAt = r.now().UTC()
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key(c.ContextID, c.ActorID), payload, 0).Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Redis) Clear(ctx context.Context, contextID, actorID string) error {
	return r.client.Del(ctx, redisKeyPrefix+key(contextID, actorID)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
