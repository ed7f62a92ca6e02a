package server

import (
	"testing"
	"time"
)

func TestGlobalRateLimit(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1})

	if !rl.AllowRequest() {
		t.Fatal("expected the first request to pass")
	}
	if rl.AllowRequest() {
		t.Fatal("expected the burst to be exhausted")
	}
}

func TestGlobalRateLimitDisabledByDefault(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		if !rl.AllowRequest() {
			t.Fatal("expected unlimited requests when no global rate is set")
		}
	}
}

func TestLoginThrottlePerKey(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute})

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.AllowLogin("203.0.113.9")
		if err != nil {
			t.Fatalf("AllowLogin error: %v", err)
		}
		if !allowed {
			t.Fatalf("expected attempt %d to pass", i+1)
		}
	}
	allowed, retryAfter, err := rl.AllowLogin("203.0.113.9")
	if err != nil {
		t.Fatalf("AllowLogin error: %v", err)
	}
	if allowed {
		t.Fatal("expected the third attempt to be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a retry hint, got %s", retryAfter)
	}

	// A different key has its own budget.
	allowed, _, err = rl.AllowLogin("198.51.100.4")
	if err != nil {
		t.Fatalf("AllowLogin error: %v", err)
	}
	if !allowed {
		t.Fatal("expected an unrelated key to pass")
	}
}

func TestLoginThrottleDisabledWithoutLimit(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	for i := 0; i < 50; i++ {
		allowed, _, err := rl.AllowLogin("203.0.113.9")
		if err != nil {
			t.Fatalf("AllowLogin error: %v", err)
		}
		if !allowed {
			t.Fatal("expected unlimited logins when no limit is set")
		}
	}
}

func TestTokenBucketRefills(t *testing.T) {
	bucket := newTokenBucket(1000, 1)
	if !bucket.Allow() {
		t.Fatal("expected the initial token")
	}
	if bucket.Allow() {
		t.Fatal("expected the bucket to be empty")
	}
	time.Sleep(5 * time.Millisecond)
	if !bucket.Allow() {
		t.Fatal("expected the bucket to refill")
	}
}

func TestRedisConfigEnabled(t *testing.T) {
	if (RedisConfig{}).Enabled() {
		t.Fatal("expected an empty config to be disabled")
	}
	if !(RedisConfig{Addr: "localhost:6379"}).Enabled() {
		t.Fatal("expected a single addr to enable the store")
	}
	if !(RedisConfig{Addrs: []string{" ", "localhost:6380"}}).Enabled() {
		t.Fatal("expected a non-blank addr in the list to enable the store")
	}
}

func TestRedisStoreSurfacesInitError(t *testing.T) {
	store := newRedisStore(RedisConfig{
		Addr: "localhost:6379",
		TLS:  RedisTLSConfig{CAFile: "/does/not/exist.pem"},
	})
	if _, _, err := store.Allow("childservice:login:x", 1, time.Minute); err == nil {
		t.Fatal("expected the TLS setup failure to surface on use")
	}
}
