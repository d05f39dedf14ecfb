package cache

import (
	"context"
	"errors"

	"github.com/fjod/farmstand/internal/domain"
)

// CartCache holds stored cart lines by session. Prices are never cached; they
// are read live on every view.
//
// A read-through fill must call Generation before loading from storage and
// pass the result to Set. Delete advances the generation, so a fill that
// raced with a write or a payment clear is dropped instead of stored.
type CartCache interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Generation(ctx context.Context, sessionID string) (int64, error)
	Set(ctx context.Context, sessionID string, cart *domain.Cart, generation int64) error
	Delete(ctx context.Context, sessionID string) error
}

var (
	ErrCacheMiss       = errors.New("cache miss")
	ErrStaleGeneration = errors.New("cache generation moved since load")
)
