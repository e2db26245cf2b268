// Package scheduler runs the periodic subscription sweep and owns the
// notification queue's lifecycle.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/talentbridge/jobboard/internal/pkg/jobqueue"
	"github.com/talentbridge/jobboard/internal/pkg/metrics"
)

const (
	defaultSweepTimeout = 10 * time.Minute
	queueStatsSpec      = "@every 30s"
	queueStatsTimeout   = 5 * time.Second
)

// Sweeper ends subscriptions whose term is over.
type Sweeper interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	cron         *cron.Cron
	sweeper      Sweeper
	queue        *jobqueue.Manager
	metrics      *metrics.Collector
	spec         string
	sweepTimeout time.Duration
	now          func() time.Time
}

// New builds a scheduler. spec uses the six-field cron format with seconds.
// queue may be nil when the process does not run workers.
func New(sweeper Sweeper, queue *jobqueue.Manager, spec string) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		sweeper:      sweeper,
		queue:        queue,
		spec:         spec,
		sweepTimeout: defaultSweepTimeout,
		now:          time.Now,
	}
}

// WithMetrics makes the scheduler publish queue depth to c.
func (s *Scheduler) WithMetrics(c *metrics.Collector) *Scheduler {
	s.metrics = c
	return s
}

// Start registers the sweep and starts the queue workers and the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Sweep); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.spec, err)
	}
	log.Infof("[Scheduler] Expiry sweep scheduled: %s", s.spec)

	if s.queue != nil && s.metrics != nil {
		if _, err := s.cron.AddFunc(queueStatsSpec, s.SampleQueue); err != nil {
			return fmt.Errorf("schedule queue sampling: %w", err)
		}
	}
	if s.queue != nil {
		s.queue.Start()
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running sweep (bounded by ctx) and drains the queue.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn("[Scheduler] Shutdown deadline reached with a sweep still running")
	}
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Sweep runs one expiry pass.
func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()

	started := s.now()
	ended, err := s.sweeper.ExpireDue(ctx, started)
	if err != nil {
		log.Errorf("[Scheduler] Expiry sweep failed after %d subscriptions: %v", ended, err)
		return
	}
	if ended > 0 {
		log.Infof("[Scheduler] Expiry sweep ended %d subscriptions in %s", ended, time.Since(started))
	}
}

// SampleQueue copies the queue's sizes and counters into the metrics.
func (s *Scheduler) SampleQueue() {
	if s.queue == nil || s.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), queueStatsTimeout)
	defer cancel()

	snap, err := s.queue.GetQueue().Snapshot(ctx)
	if err != nil {
		log.Warnf("[Scheduler] Queue snapshot incomplete: %v", err)
	}
	s.metrics.RecordQueue(snap)
}
