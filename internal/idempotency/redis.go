package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares records between API instances.
type RedisStore struct {
	Redis redis.Cmdable
}

func (s *RedisStore) Get(ctx context.Context, userID, key string) (Record, bool, error) {
	raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) Claim(ctx context.Context, userID, key string, ttl time.Duration) (bool, error) {
	return s.Redis.SetNX(ctx, fmt.Sprintf(redisx.KeyIdemCheckoutLock, userID, key), "1", ttl).Result()
}

func (s *RedisStore) Save(ctx context.Context, userID, key string, rec Record, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = redisx.TTLIdempotency
	}
	_, err = s.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, userID, key), b, ttl)
		p.Del(ctx, fmt.Sprintf(redisx.KeyIdemCheckoutLock, userID, key))
		return nil
	})
	return err
}

func (s *RedisStore) Release(ctx context.Context, userID, key string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyIdemCheckoutLock, userID, key)).Err()
}
