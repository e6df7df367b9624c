// Package queue moves deferred image replacement jobs between the request
// path and background workers over Redis Streams.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReplacementJob asks a worker to produce a replacement for one image.
type ReplacementJob struct {
	JobID      string `json:"job_id"`
	ImageURL   string `json:"image_url"`
	FilterText string `json:"filter_text"`
	UserID     string `json:"user_id"`
}

// NewReplacementJob builds a job with a fresh identifier.
func NewReplacementJob(imageURL, filterText, userID string) ReplacementJob {
	return ReplacementJob{
		JobID:      uuid.NewString(),
		ImageURL:   imageURL,
		FilterText: filterText,
		UserID:     userID,
	}
}

// Queue enqueues replacement jobs for background processing.
type Queue interface {
	Enqueue(ctx context.Context, job ReplacementJob) error
}

// RedisQueue publishes jobs to a Redis Stream.
type RedisQueue struct {
	client *redis.Client
	stream string
}

// NewRedisQueue connects to the given Redis URL and publishes to stream.
func NewRedisQueue(url, stream string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts), stream: stream}, nil
}

// NewRedisQueueWithClient wraps an existing client, sharing its connection pool.
func NewRedisQueueWithClient(client *redis.Client, stream string) *RedisQueue {
	return &RedisQueue{client: client, stream: stream}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job ReplacementJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			"job_id":     job.JobID,
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"payload":    string(payload),
		},
	}).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// MemoryQueue collects jobs in process, for tests and single-process runs.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []ReplacementJob
	err  error
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Fail makes every subsequent Enqueue return err.
func (q *MemoryQueue) Fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job ReplacementJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// Jobs returns a copy of everything enqueued so far.
func (q *MemoryQueue) Jobs() []ReplacementJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ReplacementJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}
