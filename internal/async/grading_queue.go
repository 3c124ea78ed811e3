package async

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/aigrader/aigrader/internal/worker"
)

// GradingQueue feeds queued batches to a bounded pool of workers. Each batch
// is picked up by exactly one pool worker, which preserves the one-writer-
// per-job guarantee the job record's invariants rely on.
type GradingQueue struct {
	worker  *worker.Worker
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*GradingQueue)

func WithWorkers(n int) Option {
	return func(q *GradingQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *GradingQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithJobTimeout(d time.Duration) Option {
	return func(q *GradingQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewGradingQueue(w *worker.Worker, logger *slog.Logger, opts ...Option) *GradingQueue {
	q := &GradingQueue{
		worker:  w,
		logger:  logger,
		workers: 4,
		timeout: 30 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *GradingQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("grading worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					q.worker.Run(ctx, worker.Params{
						JobID:         job.JobID,
						SubmissionIDs: job.SubmissionIDs,
						RubricID:      job.RubricID,
						SkipGraded:    job.SkipGraded,
					})
					cancel()
					q.logger.Info("grading batch finished", "worker_id", workerID, "job_id", job.JobID)
				}

				q.logger.Info("grading worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *GradingQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued grading batch", "job_id", job.JobID, "submissions", len(job.SubmissionIDs))
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", job.JobID)
		q.ch <- job
	}
	return nil
}

func (q *GradingQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
