package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Decision is the outcome of one admission check. Rejection is an expected
// decision, not an error: ResetAt tells the caller when the window frees up.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter enforces a true sliding window per key: only requests inside the
// continuously moving window count, so boundary-aligned bursts cannot
// exceed the cap.
type Limiter interface {
	// Check admits or rejects one request on the key. Rejected requests are
	// not recorded. When the counter store is unreachable the returned
	// Decision still allows the request (availability over strictness) and
	// err carries the infrastructure failure for logging.
	Check(ctx context.Context, key string, window time.Duration, maxCount int) (Decision, error)
}

// KeyFor builds the limiter key for one (operationClass, user) pair.
func KeyFor(operationClass, userID string) string {
	return operationClass + ":" + userID
}

// Evict-count-add must be one atomic unit per key; two concurrent checks
// that each ran the steps separately could both observe count < max and
// both be admitted past the cap. Timestamps are ZSET scores in unix
// milliseconds; members are unique so same-millisecond requests all count.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset = now + window
	if oldest[2] then
		reset = tonumber(oldest[2]) + window
	end
	return {0, 0, reset}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, max - count - 1, now + window}
`)

type redisLimiter struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisLimiter creates a Limiter backed by Redis sorted sets.
func NewRedisLimiter(client *redis.Client, logger zerolog.Logger) Limiter {
	return &redisLimiter{
		client: client,
		logger: logger.With().Str("service", "RateLimiter").Logger(),
	}
}

func (l *redisLimiter) Check(ctx context.Context, key string, window time.Duration, maxCount int) (Decision, error) {
	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{"ratelimit:" + key},
		now.UnixMilli(),
		window.Milliseconds(),
		maxCount,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		// Fail open: the limiter protects capacity, it does not guard money.
		l.logger.Warn().Err(err).Str("key", key).Msg("Rate limit store unreachable, failing open")
		return Decision{
			Allowed:   true,
			Remaining: maxCount - 1,
			ResetAt:   now.Add(window),
		}, fmt.Errorf("rate limit check for key %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{Allowed: true, Remaining: maxCount - 1, ResetAt: now.Add(window)},
			fmt.Errorf("rate limit script returned %d values, want 3", len(res))
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
