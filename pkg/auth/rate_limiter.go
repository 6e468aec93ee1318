package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// TokenBucketLimiter implements token bucket rate limiting
type TokenBucketLimiter struct {
	mu         sync.RWMutex
	buckets    map[string]*bucket
	maxTokens  int
	refillRate time.Duration
	cleanupInt time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucketLimiter creates a new token bucket rate limiter
func NewTokenBucketLimiter(maxTokens int, refillRate time.Duration) *TokenBucketLimiter {
	limiter := &TokenBucketLimiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		cleanupInt: 5 * time.Minute,
	}

	go limiter.cleanup()

	return limiter
}

// Allow checks if a request is allowed
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     l.maxTokens,
			lastRefill: time.Now(),
		}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill tokens based on time elapsed
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(elapsed / l.refillRate)

	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, l.maxTokens)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}

	return false, nil
}

// Reset resets the rate limit for a key
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

// cleanup removes old buckets periodically
func (l *TokenBucketLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInt)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			b.mu.Lock()
			if now.Sub(b.lastRefill) > 1*time.Hour {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
		l.mu.Unlock()
	}
}

// RemoteHostLimiter wraps a rate limiter keyed by the remote host of
// federation requests. Inbox deliveries from a misbehaving peer are
// throttled without affecting other peers.
type RemoteHostLimiter struct {
	limiter RateLimiter
}

// NewRemoteHostLimiter creates a per-host limiter allowing
// requestsPerMinute sustained deliveries with a burst of the same size.
func NewRemoteHostLimiter(requestsPerMinute int) *RemoteHostLimiter {
	refill := time.Minute / time.Duration(max(requestsPerMinute, 1))
	return &RemoteHostLimiter{
		limiter: NewTokenBucketLimiter(requestsPerMinute, refill),
	}
}

// Allow checks if a delivery from a remote host is allowed
func (l *RemoteHostLimiter) Allow(ctx context.Context, host string) (bool, error) {
	return l.limiter.Allow(ctx, fmt.Sprintf("host:%s", host))
}

// ActorRateLimiter wraps a rate limiter keyed by the authenticated
// actor, used on the client-to-server outbox.
type ActorRateLimiter struct {
	limiter RateLimiter
}

// NewActorRateLimiter creates a per-actor limiter
func NewActorRateLimiter(requestsPerMinute int) *ActorRateLimiter {
	refill := time.Minute / time.Duration(max(requestsPerMinute, 1))
	return &ActorRateLimiter{
		limiter: NewTokenBucketLimiter(requestsPerMinute, refill),
	}
}

// Allow checks if a request from an actor is allowed
func (l *ActorRateLimiter) Allow(ctx context.Context, actor string) (bool, error) {
	return l.limiter.Allow(ctx, fmt.Sprintf("actor:%s", actor))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
