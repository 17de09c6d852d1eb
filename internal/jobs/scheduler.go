package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Scheduler enqueues delayed session evictions on an asynq queue.
type Scheduler struct {
	client *asynq.Client
	delay  time.Duration
	queue  string
}

// NewScheduler enqueues on queue, which only the instance holding the sessions
// should consume. See InstanceQueue.
func NewScheduler(client *asynq.Client, delay time.Duration, queue string) *Scheduler {
	return &Scheduler{client: client, delay: delay, queue: queue}
}

// InstanceQueue names the eviction queue owned by one server instance. Sessions
// live in process memory, so an eviction must run where the session was created.
func InstanceQueue(instance string) string {
	if instance == "" {
		return "default"
	}
	return "evict:" + instance
}

// Queue reports the queue this scheduler enqueues on.
func (s *Scheduler) Queue() string {
	return s.queue
}

// ScheduleEviction enqueues one eviction per code; a second request for the same
// code is a no-op while the first is pending.
func (s *Scheduler) ScheduleEviction(ctx context.Context, code string) error {
	task, err := NewEvictSessionTask(code)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.ProcessIn(s.delay),
		asynq.TaskID("evict:"+code),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue eviction %s: %w", code, err)
	}
	return nil
}
