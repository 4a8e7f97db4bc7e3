package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-platform/pkg/utils"
)

// RedisQueue keeps per queue:
//   - q:<queue>:due  ZSET of job id scored by due time (unix ms)
//   - q:<queue>:jobs HASH of job id -> JSON body
//   - q:<queue>:dead LIST of dead-lettered bodies
//
// Reserve re-scores the taken id to now+lease, so a crashed worker's job
// becomes due again without any extra bookkeeping.
type RedisQueue struct {
	rdb   *redis.Client
	clock func() time.Time
	// DeadLimit bounds each dead-letter list.
	DeadLimit int64
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, clock: time.Now, DeadLimit: 10000}
}

var enqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

var reserveScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
local body = redis.call('HGET', KEYS[2], id)
if not body then
  redis.call('ZREM', KEYS[1], id)
  return false
end
redis.call('ZADD', KEYS[1], ARGV[2], id)
return body
`)

func dueKey(queue string) string  { return utils.RedisKey("q", queue, "due") }
func jobsKey(queue string) string { return utils.RedisKey("q", queue, "jobs") }
func deadKey(queue string) string { return utils.RedisKey("q", queue, "dead") }

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if job.ID == "" || job.Queue == "" || job.Kind == "" {
		return false, ErrInvalidJob
	}
	if job.DueAt.IsZero() {
		job.DueAt = q.clock()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	n, err := enqueueScript.Run(ctx, q.rdb,
		[]string{dueKey(job.Queue), jobsKey(job.Queue)},
		job.ID, body, job.DueAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	return n == 1, nil
}

func (q *RedisQueue) Reserve(ctx context.Context, queue string, lease time.Duration) (Job, bool, error) {
	now := q.clock()
	body, err := reserveScript.Run(ctx, q.rdb,
		[]string{dueKey(queue), jobsKey(queue)},
		now.UnixMilli(), now.Add(lease).UnixMilli(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("reserve %s: %w", queue, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, false, fmt.Errorf("decode job: %w", err)
	}
	return job, true, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, dueKey(job.Queue), job.ID)
		p.HDel(ctx, jobsKey(job.Queue), job.ID)
		return nil
	})
	return err
}

func (q *RedisQueue) Retry(ctx context.Context, job Job, delay time.Duration, cause error) error {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	job.DueAt = q.clock().Add(delay).UTC()
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, jobsKey(job.Queue), job.ID, body)
		p.ZAdd(ctx, dueKey(job.Queue), redis.Z{Score: float64(job.DueAt.UnixMilli()), Member: job.ID})
		return nil
	})
	return err
}

func (q *RedisQueue) Dead(ctx context.Context, job Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, dueKey(job.Queue), job.ID)
		p.HDel(ctx, jobsKey(job.Queue), job.ID)
		p.LPush(ctx, deadKey(job.Queue), body)
		if q.DeadLimit > 0 {
			p.LTrim(ctx, deadKey(job.Queue), 0, q.DeadLimit-1)
		}
		return nil
	})
	return err
}

// Pending returns the number of jobs waiting or leased in queue.
func (q *RedisQueue) Pending(ctx context.Context, queue string) (int64, error) {
	return q.rdb.HLen(ctx, jobsKey(queue)).Result()
}

// DeadLetters returns up to n most recent dead jobs.
func (q *RedisQueue) DeadLetters(ctx context.Context, queue string, n int64) ([]Job, error) {
	bodies, err := q.rdb.LRange(ctx, deadKey(queue), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(bodies))
	for _, b := range bodies {
		var j Job
		if err := json.Unmarshal([]byte(b), &j); err != nil {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}
