package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/redis/go-redis/v9"
)

// setIfGeneration stores the cart only while the session generation still
// matches the one observed before the storage read. A missing generation key
// reads as 0.
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:        client,
		baseTTL:       15 * time.Minute,
		generationTTL: time.Hour,
	}
}

type RedisCache struct {
	client        *redis.Client
	baseTTL       time.Duration
	generationTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

func (r RedisCache) Generation(ctx context.Context, sessionID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// Set stores the cart with a jittered TTL so entries written together do not
// expire together. It returns ErrStaleGeneration when a Delete happened after
// generation was read.
func (r RedisCache) Set(ctx context.Context, sessionID string, cart *domain.Cart, generation int64) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	stored, err := setIfGeneration.Run(ctx, r.client,
		[]string{cacheKey(sessionID), generationKey(sessionID)},
		strconv.FormatInt(generation, 10), jsonCart, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStaleGeneration
	}
	return nil
}

// Delete evicts the cart and advances the session generation in one
// transaction.
func (r RedisCache) Delete(ctx context.Context, sessionID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(sessionID))
		pipe.Expire(ctx, generationKey(sessionID), r.generationTTL)
		pipe.Del(ctx, cacheKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func generationKey(sessionID string) string {
	return fmt.Sprintf("cartgen:%s", sessionID)
}
