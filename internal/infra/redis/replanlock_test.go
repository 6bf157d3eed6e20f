package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fieldserve/notify-planner/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestReplanLockAcquireAndRelease(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)
	lock, err := NewReplanLock(client, time.Minute)
	if err != nil {
		t.Fatalf("NewReplanLock() error = %v", err)
	}

	ctx := context.Background()
	release, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := lock.Acquire(ctx); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Acquire() error = %v, want ErrConflict", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}

	release, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
}

func TestReplanLockReleaseDoesNotStealForeignLease(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)

	first, err := NewReplanLock(client, time.Minute)
	if err != nil {
		t.Fatalf("NewReplanLock() error = %v", err)
	}
	second, err := NewReplanLock(client, time.Minute)
	if err != nil {
		t.Fatalf("NewReplanLock() error = %v", err)
	}

	ctx := context.Background()
	releaseFirst, err := first.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := releaseFirst(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}

	releaseSecond, err := second.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// A stale release from the first holder must not drop the new lease.
	if err := releaseFirst(ctx); err != nil {
		t.Fatalf("stale release() error = %v", err)
	}
	if _, err := first.Acquire(ctx); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Acquire() error = %v, want ErrConflict while second holds lease", err)
	}

	if err := releaseSecond(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
}

func TestNewReplanLockRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewReplanLock(nil, time.Minute); err == nil {
		t.Fatal("NewReplanLock(nil) expected error")
	}
}
