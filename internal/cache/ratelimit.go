package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the outcome of one bucket check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucket describes one token bucket stored as a Redis hash.
type bucket struct {
	key   string
	rate  float64 // tokens per second
	burst int
	ttl   time.Duration
}

// tokenBucketScript refills and consumes a bucket atomically. It returns
// {allowed, retryAfterSeconds, remaining}.
var tokenBucketScript = redis.NewScript(`
	local rate, burst = tonumber(ARGV[1]), tonumber(ARGV[2])
	local now, ttl = tonumber(ARGV[3]), tonumber(ARGV[4])

	local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
	local tokens = tonumber(state[1]) or burst
	local ts = tonumber(state[2]) or now
	tokens = math.min(burst, tokens + (now - ts) * rate)

	local allowed, retry = 0, 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
	redis.call('EXPIRE', KEYS[1], ttl)
	return {allowed, retry, math.floor(tokens)}
`)

// CheckTokenRateLimit consumes one request from the bucket of a management
// token. A zero rate means the token's tier is unlimited.
func (c *Cache) CheckTokenRateLimit(ctx context.Context, tokenID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return unlimited(burst), nil
	}
	return c.take(ctx, bucket{
		key:   "ratelimit:token:" + tokenID,
		rate:  float64(ratePerMinute) / 60,
		burst: burst,
		ttl:   2 * time.Minute,
	})
}

// CheckIPRateLimit consumes one request from the bucket of a portal client.
// Only a digest of the address is written to Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.take(ctx, bucket{
		key:   "ratelimit:ip:" + ipDigest(ip),
		rate:  float64(ratePerSecond),
		burst: burst,
		ttl:   10 * time.Second,
	})
}

// take runs the bucket script. Redis errors fail open.
func (c *Cache) take(ctx context.Context, b bucket) (*RateLimitResult, error) {
	now := time.Now()
	res, err := tokenBucketScript.Run(ctx, c.client, []string{b.key},
		b.rate, b.burst, now.Unix(), int(b.ttl.Seconds())).Int64Slice()
	if err != nil || len(res) != 3 {
		return unlimited(b.burst), nil
	}
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(float64(time.Second) / b.rate)),
		RetryAfter: time.Duration(res[1]) * time.Second,
	}, nil
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Minute)}
}

// ipDigest returns 16 hex chars of SHA-256(ip).
func ipDigest(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
