package domain

import (
	"context"
	"time"
)

// ActorCache caches API-token-to-actor resolutions so the auth middleware
// avoids a bcrypt compare and two store reads on every request.
type ActorCache interface {
	Get(ctx context.Context, tokenID string) (Actor, bool, error)
	Set(ctx context.Context, tokenID string, actor Actor) error
	Delete(ctx context.Context, tokenID string) error
}

// LockManager provides advisory locks so background jobs run on a single
// instance at a time. Acquire returns ErrLockHeld when another holder owns
// the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per key (client IP on the HTTP surface).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventBus carries committed workflow transition events to interested
// consumers (the websocket feed). Publishing is best-effort: a failed
// publish never affects the transition that produced the event.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
