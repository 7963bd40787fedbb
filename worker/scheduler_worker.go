package worker

import (
	"context"
	"log"
	"time"

	"reachly/engine"

	"github.com/getsentry/sentry-go"
)

// SchedulerWorker periodically advances due enrollments by creating their
// review drafts.
type SchedulerWorker struct {
	Scheduler *engine.Scheduler
	Interval  time.Duration
	Logger    *log.Logger
}

func NewSchedulerWorker(scheduler *engine.Scheduler, interval time.Duration, logger *log.Logger) *SchedulerWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SchedulerWorker{
		Scheduler: scheduler,
		Interval:  interval,
		Logger:    logger,
	}
}

func (sw *SchedulerWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(5 * time.Second)

	sw.Logger.Println("Scheduler worker started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *SchedulerWorker) tick(ctx context.Context) {
	result, err := sw.Scheduler.AdvanceDueEnrollments(ctx, time.Now())
	if err != nil {
		sw.Logger.Printf("Scheduler tick failed: %v", err)
		sentry.CaptureException(err)
		return
	}
	if result.DraftsCreated > 0 || result.Failed > 0 {
		sw.Logger.Printf("Scheduler tick: %d drafts created, %d skipped, %d failed",
			result.DraftsCreated, result.Skipped, result.Failed)
	}
}
