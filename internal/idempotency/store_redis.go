package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

// RedisStore persists idempotency records in Redis with a TTL, so the ~90-day
// retention needs no sweeper. SET NX makes Put write-once.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(fundID id.FundID, key, endpoint string) string {
	return fmt.Sprintf("idem:%s:%s:%s", fundID, endpoint, key)
}

func (s *RedisStore) Get(ctx context.Context, fundID id.FundID, key, endpoint string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisKey(fundID, key, endpoint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Put(ctx context.Context, record Record, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKey(record.FundID, record.Key, record.Endpoint), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
