package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	ReadyKey      = "mailer:queue:ready"
	ProcessingKey = "mailer:queue:processing"
	JobsKey       = "mailer:queue:jobs"
	DeadLetterKey = "mailer:queue:dead_letters"
)

// Contact is the merge data snapshot taken when the job is built.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Job is one email for one recipient of one campaign. HTML is the rendered
// campaign body before personalization.
type Job struct {
	CampaignID     string      `json:"campaign_id"`
	RecipientID    string      `json:"recipient_id"`
	Email          string      `json:"email"`
	Subject        string      `json:"subject"`
	HTML           string      `json:"html"`
	SenderName     string      `json:"sender_name"`
	SenderEmail    string      `json:"sender_email"`
	UnsubscribeURL string      `json:"unsubscribe_url"`
	CompanyAddress string      `json:"company_address,omitempty"`
	Contact        Contact     `json:"contact"`
	Attempt        int         `json:"attempt"`
	Policy         RetryPolicy `json:"policy"`
	EnqueuedAt     time.Time   `json:"enqueued_at"`
}

// ID identifies the job; at most one job per recipient is pending or in
// flight at any time.
func (j Job) ID() string {
	return j.CampaignID + ":" + j.RecipientID
}

type Stats struct {
	Ready       int64 `json:"ready"`
	InFlight    int64 `json:"in_flight"`
	DeadLetters int64 `json:"dead_letters"`
}

// RedisQueue is a delayed job queue on three Redis keys: a ready sorted set
// scored by due time, a processing sorted set scored by lease expiry and a
// hash holding job payloads.
type RedisQueue struct {
	client          *redis.Client
	logger          *slog.Logger
	lease           time.Duration
	deadLetterLimit int64
}

func NewRedisQueue(client *redis.Client, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{
		client:          client,
		logger:          logger,
		lease:           5 * time.Minute,
		deadLetterLimit: 1000,
	}
}

// WithLease sets how long a claimed job may stay in flight before Reap
// hands it out again.
func (q *RedisQueue) WithLease(d time.Duration) *RedisQueue {
	q.lease = d
	return q
}

var enqueueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
    return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    local payload = redis.call('HGET', KEYS[3], id)
    if payload then
        redis.call('ZADD', KEYS[2], ARGV[3], id)
        table.insert(out, payload)
    end
end
return out
`)

var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[1], id)
end
return #ids
`)

// Enqueue adds jobs that are due immediately. Jobs whose recipient already
// has a pending or in-flight job are skipped. It returns how many were added.
func (q *RedisQueue) Enqueue(ctx context.Context, jobs []Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	now := time.Now()
	score := formatScore(now)
	pipe := q.client.Pipeline()
	cmds := make([]*redis.Cmd, 0, len(jobs))

	for _, job := range jobs {
		if job.Attempt == 0 {
			job.Attempt = 1
		}
		if job.EnqueuedAt.IsZero() {
			job.EnqueuedAt = now
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return 0, fmt.Errorf("marshaling job %s: %w", job.ID(), err)
		}
		cmds = append(cmds, enqueueScript.Eval(ctx, pipe, []string{JobsKey, ReadyKey}, job.ID(), payload, score))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queuing jobs to redis: %w", err)
	}

	added := 0
	for _, cmd := range cmds {
		if n, _ := cmd.Int(); n == 1 {
			added++
		}
	}
	return added, nil
}

// Claim moves up to limit due jobs into processing under a lease.
func (q *RedisQueue) Claim(ctx context.Context, limit int) ([]Job, error) {
	now := time.Now()
	payloads, err := claimScript.Run(ctx, q.client,
		[]string{ReadyKey, ProcessingKey, JobsKey},
		formatScore(now), limit, formatScore(now.Add(q.lease)),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming jobs: %w", err)
	}

	jobs := make([]Job, 0, len(payloads))
	for _, p := range payloads {
		var job Job
		if err := json.Unmarshal([]byte(p), &job); err != nil {
			q.logger.Error("failed to unmarshal job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Reap returns jobs whose lease expired to the ready set.
func (q *RedisQueue) Reap(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.client,
		[]string{ProcessingKey, ReadyKey}, formatScore(time.Now()),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reaping expired leases: %w", err)
	}
	if n > 0 {
		q.logger.Warn("requeued jobs with expired lease", "count", n)
	}
	return n, nil
}

// Ack removes a finished job.
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, ProcessingKey, job.ID())
	pipe.HDel(ctx, JobsKey, job.ID())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acking job %s: %w", job.ID(), err)
	}
	return nil
}

// Retry schedules the next attempt of a failed job after delay.
func (q *RedisQueue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	job.Attempt++
	return q.reschedule(ctx, job, delay)
}

// Defer puts a job back without consuming an attempt.
func (q *RedisQueue) Defer(ctx context.Context, job Job, delay time.Duration) error {
	return q.reschedule(ctx, job, delay)
}

func (q *RedisQueue) reschedule(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID(), err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, JobsKey, job.ID(), payload)
	pipe.ZRem(ctx, ProcessingKey, job.ID())
	pipe.ZAdd(ctx, ReadyKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMicro()),
		Member: job.ID(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rescheduling job %s: %w", job.ID(), err)
	}
	return nil
}

// DeadLetter removes the job and records it on the capped dead-letter list.
func (q *RedisQueue) DeadLetter(ctx context.Context, job Job, cause error, permanent bool) error {
	entry := domain.DeadLetter{
		CampaignID:  job.CampaignID,
		RecipientID: job.RecipientID,
		Email:       job.Email,
		Attempts:    job.Attempt,
		Permanent:   permanent,
		AbandonedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling dead letter: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, ProcessingKey, job.ID())
	pipe.HDel(ctx, JobsKey, job.ID())
	pipe.LPush(ctx, DeadLetterKey, payload)
	pipe.LTrim(ctx, DeadLetterKey, 0, q.deadLetterLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-lettering job %s: %w", job.ID(), err)
	}
	return nil
}

// DeadLetters returns the most recent abandoned jobs, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := q.client.LRange(ctx, DeadLetterKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}

	out := make([]domain.DeadLetter, 0, len(raw))
	for _, r := range raw {
		var dl domain.DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			q.logger.Error("failed to unmarshal dead letter", "error", err)
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.ZCard(ctx, ReadyKey)
	inFlight := pipe.ZCard(ctx, ProcessingKey)
	dead := pipe.LLen(ctx, DeadLetterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("reading queue stats: %w", err)
	}
	return Stats{Ready: ready.Val(), InFlight: inFlight.Val(), DeadLetters: dead.Val()}, nil
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
