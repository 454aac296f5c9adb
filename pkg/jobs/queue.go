package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has been called.
var ErrQueueClosed = errors.New("queue closed")

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Subject  string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// FailureHook observes a job whose handler returned an error or panicked.
type FailureHook func(Job, error)

// QueueConfig configures batch draining behaviour.
type QueueConfig struct {
	Concurrency int
	BatchPause  time.Duration
	TaskTimeout time.Duration
	Logger      *zap.Logger
	OnFailure   FailureHook
}

// BatchQueue is a non-durable in-memory backlog drained in FIFO batches of at most
// Concurrency jobs. A batch is dispatched concurrently and fully settles before the
// next one is taken. One drain loop runs at a time; it exits when the backlog is empty
// and the next Enqueue starts a new one.
type BatchQueue struct {
	name    string
	handler Handler

	concurrency int
	pause       time.Duration
	taskTimeout time.Duration
	logger      *zap.Logger
	onFailure   FailureHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	backlog  []Job
	draining bool
	closed   bool
	loops    int
}

// NewBatchQueue builds a queue with the provided handler.
func NewBatchQueue(name string, handler Handler, cfg QueueConfig) *BatchQueue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	q := &BatchQueue{
		name:        name,
		handler:     handler,
		concurrency: cfg.Concurrency,
		pause:       cfg.BatchPause,
		taskTimeout: cfg.TaskTimeout,
		logger:      cfg.Logger,
		onFailure:   cfg.OnFailure,
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	if q.onFailure == nil {
		q.onFailure = func(job Job, err error) {
			q.logger.Warn("job failed",
				zap.String("queue", q.name),
				zap.String("job_id", job.ID),
				zap.String("type", job.Type),
				zap.String("subject", job.Subject),
				zap.Error(err))
		}
	}
	return q
}

// Enqueue appends jobs to the backlog and starts the drain loop if it is idle.
func (q *BatchQueue) Enqueue(jobs ...Job) error {
	if len(jobs) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		if job.Enqueued.IsZero() {
			job.Enqueued = now
		}
		q.backlog = append(q.backlog, job)
	}

	if !q.draining {
		q.draining = true
		q.loops++
		q.wg.Add(1)
		go q.drain()
	}
	return nil
}

// Pending reports the number of jobs not yet taken into a batch.
func (q *BatchQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Draining reports whether a drain loop is currently running.
func (q *BatchQueue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Concurrency reports the batch size limit.
func (q *BatchQueue) Concurrency() int {
	return q.concurrency
}

// Shutdown stops accepting jobs and waits for the backlog to drain. If ctx ends first,
// in-flight handlers are cancelled and the remaining backlog is abandoned; the number
// of abandoned jobs is returned together with ctx's error.
func (q *BatchQueue) Shutdown(ctx context.Context) (int, error) {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return 0, nil
	case <-ctx.Done():
	}

	q.cancel()
	<-done

	q.mu.Lock()
	abandoned := len(q.backlog)
	q.backlog = nil
	q.mu.Unlock()

	if abandoned > 0 {
		q.logger.Warn("queue abandoned backlog", zap.String("queue", q.name), zap.Int("abandoned", abandoned))
	}
	return abandoned, ctx.Err()
}

func (q *BatchQueue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.ctx.Err() != nil {
			// cancelled between batches: the rest is counted by Shutdown as abandoned
			q.draining = false
			q.mu.Unlock()
			return
		}
		n := q.concurrency
		if n > len(q.backlog) {
			n = len(q.backlog)
		}
		batch := make([]Job, n)
		copy(batch, q.backlog[:n])
		q.backlog = q.backlog[n:]
		q.mu.Unlock()

		q.runBatch(batch)

		q.mu.Lock()
		if len(q.backlog) == 0 || q.ctx.Err() != nil {
			q.draining = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		if q.pause > 0 {
			timer := time.NewTimer(q.pause)
			select {
			case <-q.ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
		}
	}
}

func (q *BatchQueue) runBatch(batch []Job) {
	var wg sync.WaitGroup
	for _, job := range batch {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			if err := q.run(j); err != nil {
				q.onFailure(j, err)
			}
		}(job)
	}
	wg.Wait()
}

func (q *BatchQueue) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	ctx := q.ctx
	if q.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.taskTimeout)
		defer cancel()
	}
	return q.handler(ctx, job)
}
