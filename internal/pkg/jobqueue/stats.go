package jobqueue

import (
	"context"
	"errors"
)

// Snapshot is a point-in-time view of the queue for monitoring.
type Snapshot struct {
	Pending    int64
	Processing int64
	Delayed    int64
	Dead       int64
	// Lifetime counts jobs ever enqueued, completed or killed, by status.
	Lifetime map[JobStatus]int64
}

// Snapshot reads every list size and the lifetime counters. Sizes that fail
// to load are left at zero and reported in the joined error.
func (q *Queue) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		s    Snapshot
		errs []error
		err  error
	)
	if s.Pending, err = q.GetQueueSize(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.Processing, err = q.GetProcessingSize(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.Delayed, err = q.GetDelayedSize(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.Dead, err = q.GetDeadSize(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.Lifetime, err = q.GetJobStats(ctx); err != nil {
		errs = append(errs, err)
	}
	return s, errors.Join(errs...)
}
