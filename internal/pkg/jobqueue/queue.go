package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	JobKeyPrefix     = "notify:job:"
	JobQueueKey      = "notify:pending"
	JobProcessingKey = "notify:processing"
	JobDelayedKey    = "notify:delayed"
	JobDeadKey       = "notify:dead"
	JobStatsKey      = "notify:stats"

	DefaultMaxAttempts = 4
	JobTTL             = 72 * time.Hour
	// RetryBackoff doubles after every failed attempt.
	RetryBackoff = 30 * time.Second

	dequeueTimeout      = time.Second
	stuckAfter          = 10 * time.Minute
	maintenanceInterval = 30 * time.Second
)

// Handler delivers one job. A returned error schedules a retry while
// attempts remain.
type Handler func(ctx context.Context, job *Job) error

// Queue is a Redis-backed delivery queue. Pending and in-flight jobs live in
// lists, retries wait in a sorted set keyed by their due time, and jobs that
// ran out of attempts move to a dead list for inspection.
type Queue struct {
	client  *redis.Client
	workers int
	now     func() time.Time

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueueWithClient creates a queue on client with the given worker count
func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:   client,
		workers:  workers,
		now:      time.Now,
		handlers: make(map[JobType]Handler),
	}
}

// Handle registers the handler for a job type, replacing any earlier one
func (q *Queue) Handle(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the maintenance loop
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(1)
	go q.maintain(ctx)
}

// Stop signals the workers and waits for in-flight jobs to finish
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel == nil {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	q.cancel()
	q.cancel = nil
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		if _, err := q.ProcessNext(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("[JobQueue] Worker %d: %v", id, err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	log.Debugf("[JobQueue] Worker %d stopped", id)
}

// maintain promotes due retries and recovers jobs abandoned by a crashed
// worker.
func (q *Queue) maintain(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := q.now()
			if n, err := q.PromoteDue(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promote retries: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue] Promoted %d retries", n)
			}
			if n, err := q.RecoverStuck(ctx, now, stuckAfter); err != nil {
				log.Errorf("[JobQueue] Recover stuck jobs: %v", err)
			} else if n > 0 {
				log.Warnf("[JobQueue] Recovered %d stuck jobs", n)
			}
		}
	}
}

// EnqueueJob stores a new job and appends it to the pending list
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := q.now()
	job := &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Status:      JobStatusPending,
		Payload:     payload,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// ProcessNext waits briefly for a pending job and runs it. It reports false
// when nothing arrived.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	id, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, dequeueTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, id)
		return true, fmt.Errorf("load job %s: %w", id, err)
	}
	// in-flight deliveries finish even when the queue is stopping
	q.run(context.WithoutCancel(ctx), job)
	return true, nil
}

func (q *Queue) run(ctx context.Context, job *Job) {
	job.start(q.now())
	q.save(ctx, job)

	var err error
	if h, ok := q.handler(job.Type); ok {
		err = h(ctx, job)
	} else {
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, JobProcessingKey, 1, job.ID)
	switch {
	case err == nil:
		pipe.Del(ctx, JobKeyPrefix+job.ID)
		pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusCompleted), 1)
	default:
		job.fail(err, q.now(), RetryBackoff)
		if data, merr := json.Marshal(job); merr == nil {
			pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
		}
		if job.Status == JobStatusRetrying {
			log.Warnf("[JobQueue] %s job %s failed (attempt %d/%d): %v", job.Type, job.ID, job.Attempts, job.MaxAttempts, err)
			pipe.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(job.NextAttemptAt.Unix()), Member: job.ID})
		} else {
			log.Errorf("[JobQueue] %s job %s is dead after %d attempts: %v", job.Type, job.ID, job.Attempts, err)
			pipe.LPush(ctx, JobDeadKey, job.ID)
			pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusDead), 1)
		}
	}
	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Errorf("[JobQueue] Failed to settle job %s: %v", job.ID, perr)
	}
}

// PromoteDue moves retries whose backoff has elapsed back to pending
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		// ZRem wins the race when several processes promote at once.
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// RecoverStuck returns jobs that have been processing longer than maxAge to
// the pending list and drops processing entries whose data is gone.
func (q *Queue) RecoverStuck(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			q.client.LRem(ctx, JobProcessingKey, 1, id)
			continue
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) <= maxAge {
			continue
		}
		job.Status = JobStatusPending
		job.LastError = "recovered after worker loss"
		job.UpdatedAt = now
		q.save(ctx, job)
		q.client.LRem(ctx, JobProcessingKey, 1, id)
		q.client.RPush(ctx, JobQueueKey, id)
		recovered++
	}
	return recovered, nil
}

func (q *Queue) save(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to store job %s: %v", job.ID, err)
	}
}

// GetJob loads a stored job; completed jobs are removed and return redis.Nil
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStats returns lifetime counters per status
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, count := range raw {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}

func (q *Queue) GetDeadSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobDeadKey).Result()
}
