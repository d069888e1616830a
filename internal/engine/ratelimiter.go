package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter caps sends per recipient mail domain with a sliding window
// kept in a Redis sorted set, so the cap holds across every worker process.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
}

// Drops entries older than the window, then admits the request if the
// remaining count is under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
end
return 0
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		window:      time.Second,
	}
}

// WithWindow changes the sliding window length.
func (rl *RateLimiter) WithWindow(d time.Duration) *RateLimiter {
	if d > 0 {
		rl.window = d
	}
	return rl
}

// Window is how long a throttled job should wait before it is retried.
func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}

func rlKey(mailDomain string) string {
	return fmt.Sprintf("mailer:rl:%s", mailDomain)
}

// Allow reports whether another send to mailDomain fits in the current
// window. A limit of zero or less disables limiting; Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, mailDomain string, limit int) bool {
	if limit <= 0 {
		return true
	}

	now := time.Now().UnixMilli()
	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(mailDomain)},
		now, rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "mail_domain", mailDomain)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "mail_domain", mailDomain, "limit", limit)
		return false
	}
	return true
}
