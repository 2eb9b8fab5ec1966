package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ BlobStore = (*RedisStore)(nil)

const redisKeyPrefix = "meme-comb:snapshot:"

// RedisStore keeps each snapshot as one string key without TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := s.client.Set(ctx, redisKey(name), blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(name string) string {
	return redisKeyPrefix + name
}
