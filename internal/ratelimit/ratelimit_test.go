package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "test:", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "device-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	decision, err := limiter.Allow(ctx, "device-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed || decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Fatalf("third attempt should be rejected with retry-after, got %+v", decision)
	}

	other, err := limiter.Allow(ctx, "device-2")
	if err != nil || !other.Allowed {
		t.Fatalf("keys must be independent: %+v %v", other, err)
	}

	mr.FastForward(time.Minute + time.Second)
	decision, err = limiter.Allow(ctx, "device-1")
	if err != nil || !decision.Allowed {
		t.Fatalf("window should reset after expiry: %+v %v", decision, err)
	}
	if !mr.Exists("test:device-1") {
		t.Fatalf("expected prefixed key in redis")
	}
}

func TestLocalLimiterRefills(t *testing.T) {
	limiter := NewLocalLimiter(2, time.Minute)
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := limiter.Allow(ctx, "k"); !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	d, _ := limiter.Allow(ctx, "k")
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected rejection with retry-after, got %+v", d)
	}

	current = current.Add(30 * time.Second)
	if d, _ := limiter.Allow(ctx, "k"); !d.Allowed {
		t.Fatalf("expected one token refilled after half the window")
	}
}

func TestLocalLimiterEvictsIdleKeys(t *testing.T) {
	limiter := NewLocalLimiter(2, time.Minute)
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if _, err := limiter.Allow(ctx, fmt.Sprintf("device-%d", i)); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	if got := limiter.Len(); got != 50 {
		t.Fatalf("expected 50 tracked keys, got %d", got)
	}

	current = current.Add(time.Minute)
	for i := 0; i < 2; i++ {
		if d, _ := limiter.Allow(ctx, "hot"); !d.Allowed {
			t.Fatalf("hot attempt %d should be allowed", i)
		}
	}
	if got := limiter.Len(); got != 1 {
		t.Fatalf("expected refilled keys to be evicted, %d keys left", got)
	}

	current = current.Add(10 * time.Second)
	if d, _ := limiter.Allow(ctx, "hot"); d.Allowed {
		t.Fatalf("a key still limited must keep its state")
	}
}

func TestNewPicksImplementation(t *testing.T) {
	limiter, closeFn, err := New("", "p:", 0, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := limiter.(Unlimited); !ok {
		t.Fatalf("expected unlimited limiter for zero limit, got %T", limiter)
	}
	_ = closeFn()

	limiter, _, err = New("", "p:", 5, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := limiter.(*LocalLimiter); !ok {
		t.Fatalf("expected local limiter without redis url, got %T", limiter)
	}

	mr := miniredis.RunT(t)
	limiter, closeFn, err = New("redis://"+mr.Addr()+"/0", "p:", 5, time.Minute)
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer func() { _ = closeFn() }()
	if _, ok := limiter.(*RedisLimiter); !ok {
		t.Fatalf("expected redis limiter, got %T", limiter)
	}
	if _, _, err := New("::bad", "p:", 5, time.Minute); err == nil {
		t.Fatalf("expected invalid redis url error")
	}
}
