package worker

import (
	"context"
	"log"
	"time"

	"reachly/engine"

	"github.com/getsentry/sentry-go"
)

// ExpiryWorker periodically sweeps pending drafts whose review window has
// closed, expiring them or auto-approving the ones configured for it.
type ExpiryWorker struct {
	Review   *engine.ReviewService
	Interval time.Duration
	Logger   *log.Logger
}

func NewExpiryWorker(review *engine.ReviewService, interval time.Duration, logger *log.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &ExpiryWorker{
		Review:   review,
		Interval: interval,
		Logger:   logger,
	}
}

func (ew *ExpiryWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	ew.Logger.Println("Expiry worker started")

	ticker := time.NewTicker(ew.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ew.Logger.Println("Expiry worker shutting down...")
			return
		case <-ticker.C:
			ew.sweep(ctx)
		}
	}
}

func (ew *ExpiryWorker) sweep(ctx context.Context) {
	if _, err := ew.Review.ExpireSweep(ctx, time.Now()); err != nil {
		ew.Logger.Printf("Expiry sweep failed: %v", err)
		sentry.CaptureException(err)
	}
}
