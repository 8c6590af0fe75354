package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/metrics"
)

// HandlerFunc processes one claimed job. A nil return settles the job;
// an error sends it through the queue's retry/backoff path. Handlers that
// want to drop a job (entity deleted, state already advanced) log and
// return nil.
type HandlerFunc func(ctx context.Context, job Job) error

type handler struct {
	fn          HandlerFunc
	concurrency int
}

// Worker polls the jobs table and runs registered handlers. Each task type
// gets its own goroutine pool so a slow dispatch lane (concurrency 1, to
// serialize sends against the account rate limit) cannot starve
// preparation work.
type Worker struct {
	Repo *Repository
	Log  *zap.Logger

	// Tuning knobs, set before Run.
	PollInterval time.Duration
	LeaseFor     time.Duration

	handlers map[string]handler
}

func NewWorker(repo *Repository, log *zap.Logger) *Worker {
	return &Worker{
		Repo:         repo,
		Log:          log,
		PollInterval: 500 * time.Millisecond,
		LeaseFor:     2 * time.Minute,
		handlers:     make(map[string]handler),
	}
}

// Handle registers fn for taskType with the given goroutine count.
func (w *Worker) Handle(taskType string, concurrency int, fn HandlerFunc) {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.handlers[taskType] = handler{fn: fn, concurrency: concurrency}
}

// Run blocks until ctx is cancelled. Alongside the handler pools it runs a
// lease sweep that returns jobs from crashed workers to pending.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return fmt.Errorf("queue worker: no handlers registered")
	}

	var wg sync.WaitGroup
	for taskType, h := range w.handlers {
		for i := 0; i < h.concurrency; i++ {
			wg.Add(1)
			go func(taskType string, fn HandlerFunc) {
				defer wg.Done()
				w.poll(ctx, taskType, fn)
			}(taskType, h.fn)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweepLeases(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) poll(ctx context.Context, taskType string, fn HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Repo.ClaimNext(ctx, taskType, w.LeaseFor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Error("claim failed", zap.String("type", taskType), zap.Error(err))
			w.sleep(ctx, w.PollInterval)
			continue
		}
		if job == nil {
			w.sleep(ctx, w.PollInterval)
			continue
		}

		w.runOne(ctx, job, fn)
	}
}

// runOne executes a single job. Handler panics and errors are contained
// here; a task failure never takes the worker process down.
func (w *Worker) runOne(ctx context.Context, job *Job, fn HandlerFunc) {
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("handler panic: %v", p)
			}
		}()
		err = fn(ctx, *job)
	}()

	if err == nil {
		metrics.JobsTotal.WithLabelValues(job.Type, "completed").Inc()
		if cerr := w.Repo.Complete(ctx, job.ID); cerr != nil {
			w.Log.Error("complete job", zap.String("job", job.ID), zap.Error(cerr))
		}
		return
	}

	sentry.CaptureException(err)
	metrics.JobsTotal.WithLabelValues(job.Type, "failed").Inc()
	w.Log.Warn("job failed",
		zap.String("job", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts),
		zap.Error(err),
	)
	if ferr := w.Repo.Fail(ctx, job, err); ferr != nil {
		w.Log.Error("record job failure", zap.String("job", job.ID), zap.Error(ferr))
	}
}

func (w *Worker) sweepLeases(ctx context.Context) {
	tick := time.NewTicker(w.LeaseFor / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			for taskType := range w.handlers {
				n, err := w.Repo.RequeueExpired(ctx, taskType)
				if err != nil {
					w.Log.Error("requeue expired", zap.String("type", taskType), zap.Error(err))
					continue
				}
				if n > 0 {
					w.Log.Warn("requeued expired leases", zap.String("type", taskType), zap.Int64("count", n))
				}
			}
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
