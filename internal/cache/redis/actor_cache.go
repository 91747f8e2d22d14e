package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

const actorTTL = 5 * time.Minute

// ActorCache implements domain.ActorCache using JSON-serialized actors keyed
// by the public half of the API token. Entries expire on a short TTL so
// revoked tokens stop resolving without an explicit purge.
type ActorCache struct {
	rdb *redis.Client
}

// NewActorCache creates an ActorCache backed by the given Client.
func NewActorCache(c *Client) *ActorCache {
	return &ActorCache{rdb: c.Underlying()}
}

func actorKey(tokenID string) string { return "actor:" + tokenID }

// Get returns the cached actor for the token ID, reporting a miss when the
// key is absent or expired.
func (ac *ActorCache) Get(ctx context.Context, tokenID string) (domain.Actor, bool, error) {
	data, err := ac.rdb.Get(ctx, actorKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Actor{}, false, nil
		}
		return domain.Actor{}, false, fmt.Errorf("redis: get actor %s: %w", tokenID, err)
	}

	var actor domain.Actor
	if err := json.Unmarshal(data, &actor); err != nil {
		return domain.Actor{}, false, fmt.Errorf("redis: unmarshal actor %s: %w", tokenID, err)
	}
	return actor, true, nil
}

// Set stores the actor resolution with the cache TTL.
func (ac *ActorCache) Set(ctx context.Context, tokenID string, actor domain.Actor) error {
	data, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("redis: marshal actor %s: %w", tokenID, err)
	}
	if err := ac.rdb.Set(ctx, actorKey(tokenID), data, actorTTL).Err(); err != nil {
		return fmt.Errorf("redis: set actor %s: %w", tokenID, err)
	}
	return nil
}

// Delete drops a cached resolution (token revocation).
func (ac *ActorCache) Delete(ctx context.Context, tokenID string) error {
	if err := ac.rdb.Del(ctx, actorKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("redis: delete actor %s: %w", tokenID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ActorCache = (*ActorCache)(nil)
