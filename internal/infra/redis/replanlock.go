package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	replanLockKey   = "notify-planner:replan-lock"
	defaultLeaseTTL = 2 * time.Minute
	minimumLeaseTTL = time.Second
)

// releaseScript deletes the lease only if it is still held by the caller.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReplanLock is a redis-backed lease that serializes force-replan across
// instances. The cancel and regenerate phases are not transactional in the
// store, so at most one coordinator should run them at a time.
type ReplanLock struct {
	client *goredis.Client
	ttl    time.Duration
	newID  func() string
}

func NewReplanLock(client *goredis.Client, ttl time.Duration) (*ReplanLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl < minimumLeaseTTL {
		ttl = defaultLeaseTTL
	}

	return &ReplanLock{
		client: client,
		ttl:    ttl,
		newID:  uuid.NewString,
	}, nil
}

// Acquire takes the lease or fails with domain.ErrConflict when another
// replan is in flight. The returned release function is safe to call after
// lease expiry; it only deletes a lease the caller still owns.
func (l *ReplanLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	owner := l.newID()

	ok, err := l.client.SetNX(ctx, replanLockKey, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire replan lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: replan already in progress", domain.ErrConflict)
	}

	release := func(releaseCtx context.Context) error {
		if releaseCtx == nil {
			releaseCtx = context.Background()
		}
		if err := releaseScript.Run(releaseCtx, l.client, []string{replanLockKey}, owner).Err(); err != nil {
			return fmt.Errorf("failed to release replan lock: %w", err)
		}
		return nil
	}

	return release, nil
}
