package redis

import (
	"chat-pubsub/errors"
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// Store keeps hashes in Redis, one HSET key per profile or topic.
type Store struct {
	client *goredis.Client
}

func NewStore(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := lo.MapValues(fields, func(v string, _ string) any { return v })
	return s.client.HSet(ctx, key, values).Err()
}

func (s *Store) GetFields(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.ErrNotFound
	}
	return fields, nil
}

func (s *Store) GetField(ctx context.Context, key, field string) (string, error) {
	value, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", errors.ErrNotFound
	}
	return value, err
}
