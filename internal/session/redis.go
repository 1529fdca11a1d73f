package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisProvider stores each session as a hash of its slots.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProvider expires sessions ttl after they are set. Zero keeps them until cleared.
func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl}
}

func (p *RedisProvider) Session(id string) Store {
	return &redisSession{client: p.client, key: keyPrefix + id, ttl: p.ttl}
}

type redisSession struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (s *redisSession) Get(ctx context.Context) (*Actor, error) {
	slots, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	return decode(slots), nil
}

// Set replaces all slots in one transaction so readers never see a mix of two identities.
func (s *redisSession) Set(ctx context.Context, actor Actor) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, encode(actor))
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (s *redisSession) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}
