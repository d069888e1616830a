package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half-open"
)

// CircuitBreaker guards one recipient mail domain at a time. Transient
// transport failures against a domain open its circuit; while open, jobs
// for that domain are deferred instead of sent. After the cooldown a single
// probe is let through.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

type CircuitBreakerState struct {
	Domain       string       `json:"domain"`
	State        CircuitState `json:"state"`
	Failures     int          `json:"failures"`
	LastFailedAt string       `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

// WithThreshold overrides the failure count and cooldown.
func (cb *CircuitBreaker) WithThreshold(failures int, cooldown time.Duration) *CircuitBreaker {
	if failures > 0 {
		cb.failureThreshold = failures
	}
	if cooldown > 0 {
		cb.cooldownPeriod = cooldown
	}
	return cb
}

// Cooldown is how long an open circuit blocks sends before a probe.
func (cb *CircuitBreaker) Cooldown() time.Duration {
	return cb.cooldownPeriod
}

func cbKey(mailDomain string) string {
	return fmt.Sprintf("mailer:cb:%s", mailDomain)
}

// circuitTTL bounds how long state for an idle domain is kept.
const circuitTTL = 24 * 60 * 60

// Returns {state, allowed}. Open moves to half-open once the cooldown has
// passed and hands out one probe; a stale probe is replaced after another
// cooldown.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])

local state = redis.call('HGET', key, 'state')
if not state or state == 'closed' then
    return {'closed', 1}
end

if state == 'open' then
    local last = tonumber(redis.call('HGET', key, 'last_failed_at') or '0')
    if now - last >= cooldown then
        redis.call('HSET', key, 'state', 'half-open', 'probe_at', now)
        return {'half-open', 1}
    end
    return {'open', 0}
end

local probe = tonumber(redis.call('HGET', key, 'probe_at') or '0')
if now - probe >= cooldown then
    redis.call('HSET', key, 'probe_at', now)
    return {'half-open', 1}
end
return {'half-open', 0}
`)

// Returns {previous state, new state, failures}.
var failureScript = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]
local threshold = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local prev = redis.call('HGET', key, 'state') or 'closed'
local failures = redis.call('HINCRBY', key, 'failures', 1)
redis.call('HSET', key, 'last_failed_at', now)

local nstate = prev
if prev == 'half-open' or failures >= threshold then
    nstate = 'open'
end
redis.call('HSET', key, 'state', nstate)
redis.call('EXPIRE', key, ttl)
return {prev, nstate, failures}
`)

// AllowRequest reports the circuit state for a mail domain and whether a
// send may proceed. Redis errors fail open.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, mailDomain string) (CircuitState, bool) {
	res, err := allowScript.Run(ctx, cb.redisClient, []string{cbKey(mailDomain)},
		time.Now().Unix(), int64(cb.cooldownPeriod.Seconds()),
	).Slice()
	if err != nil || len(res) != 2 {
		if err != nil {
			cb.logger.Error("circuit breaker check failed", "error", err, "mail_domain", mailDomain)
		}
		return StateClosed, true
	}

	state := CircuitState(fmt.Sprint(res[0]))
	allowed, _ := res[1].(int64)
	if state == StateHalfOpen && allowed == 1 {
		cb.logger.Info("circuit breaker half-open, sending probe", "mail_domain", mailDomain)
	}
	return state, allowed == 1
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, mailDomain string) {
	key := cbKey(mailDomain)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	if prev == "" {
		return
	}

	pipe := cb.redisClient.TxPipeline()
	pipe.HSet(ctx, key, "state", string(StateClosed), "failures", 0)
	pipe.HDel(ctx, key, "probe_at")
	if _, err := pipe.Exec(ctx); err != nil {
		cb.logger.Error("failed to reset circuit breaker", "error", err, "mail_domain", mailDomain)
		return
	}

	if CircuitState(prev) != StateClosed {
		cb.logger.Info("circuit breaker closed (recovered)", "mail_domain", mailDomain)
	}
}

// RecordFailure counts a transient failure and opens the circuit once the
// threshold is reached, or immediately when the half-open probe failed.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, mailDomain string) {
	res, err := failureScript.Run(ctx, cb.redisClient, []string{cbKey(mailDomain)},
		time.Now().Unix(), cb.failureThreshold, circuitTTL,
	).Slice()
	if err != nil || len(res) != 3 {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "mail_domain", mailDomain)
		return
	}

	prev := CircuitState(fmt.Sprint(res[0]))
	next := CircuitState(fmt.Sprint(res[1]))
	failures, _ := res[2].(int64)

	switch {
	case prev == StateHalfOpen && next == StateOpen:
		cb.logger.Warn("circuit breaker re-opened (probe failed)", "mail_domain", mailDomain)
	case prev == StateClosed && next == StateOpen:
		cb.logger.Warn("circuit breaker opened",
			"mail_domain", mailDomain,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	}
}

// GetState returns the circuit for a mail domain without changing it.
func (cb *CircuitBreaker) GetState(ctx context.Context, mailDomain string) CircuitBreakerState {
	result := CircuitBreakerState{Domain: mailDomain, State: StateClosed}

	data, err := cb.redisClient.HGetAll(ctx, cbKey(mailDomain)).Result()
	if err != nil || len(data) == 0 {
		return result
	}

	result.Failures, _ = strconv.Atoi(data["failures"])
	if s := data["state"]; s != "" {
		result.State = CircuitState(s)
	}

	lastFailed, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	if result.State == StateOpen && time.Now().Unix()-lastFailed >= int64(cb.cooldownPeriod.Seconds()) {
		result.State = StateHalfOpen
	}
	if lastFailed > 0 {
		result.LastFailedAt = time.Unix(lastFailed, 0).UTC().Format(time.RFC3339)
	}
	return result
}
