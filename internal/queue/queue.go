// Package queue implements the gateway's bounded job queue: a
// non-blocking FIFO drained by exactly one long-running worker, since
// only one upstream action may be in flight at a time.
package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"lookup-gateway/internal/classifier"
)

// JobResult is the terminal outcome of one lookup.
type JobResult struct {
	INN, FIO, Phone, Email string
	Status                 classifier.Status
	SafeText               string
}

// Job is one admitted lookup request. Its completion handle resolves
// exactly once, whether served from cache or from the upstream.
type Job struct {
	UserID int64
	ChatID int64
	INN    string
	FIO    string

	done chan JobResult
	once sync.Once
}

// NewJob builds a Job ready for enqueueing.
func NewJob(userID, chatID int64, inn, fio string) *Job {
	return &Job{
		UserID: userID,
		ChatID: chatID,
		INN:    inn,
		FIO:    fio,
		done:   make(chan JobResult, 1),
	}
}

// Complete resolves the job's completion handle. Only the first call
// has effect; later calls are no-ops, matching the invariant that
// every Job's result is produced exactly once.
func (j *Job) Complete(r JobResult) {
	j.once.Do(func() {
		j.done <- r
		close(j.done)
	})
}

// Wait blocks until the job completes or ctx is cancelled.
func (j *Job) Wait(ctx context.Context) (JobResult, error) {
	select {
	case r := <-j.done:
		return r, nil
	case <-ctx.Done():
		return JobResult{}, ctx.Err()
	}
}

// Processor performs the actual lookup (cache check, upstream
// conversation, classification) for one Job.
type Processor func(ctx context.Context, job *Job) JobResult

// Queue is a bounded FIFO with exactly one consumer.
type Queue struct {
	ch     chan *Job
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a queue with the given capacity.
func New(maxSize int, logger *zap.Logger) *Queue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Queue{
		ch:     make(chan *Job, maxSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// TryEnqueue attempts to admit job without blocking. It returns false
// when the queue is full; the caller must inform the requester rather
// than wait.
func (q *Queue) TryEnqueue(job *Job) bool {
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Depth reports how many jobs are currently waiting.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Start launches the single worker goroutine, draining jobs through
// process until ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context, process Processor) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				q.drain()
				return
			case job := <-q.ch:
				result := process(ctx, job)
				job.Complete(result)
			}
		}
	}()
}

// Stop signals the worker to exit and waits for it to drain its
// current job.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	<-q.done
}

// drain resolves every job still waiting in the channel with ERROR, so
// no completion handle is left unresolved after cancellation. It runs
// once; TryEnqueue still accepts jobs after Stop, and such a job is
// never resolved — callers must not enqueue after shutdown begins.
func (q *Queue) drain() {
	for {
		select {
		case job := <-q.ch:
			job.Complete(JobResult{
				INN: job.INN, FIO: job.FIO,
				Status:   classifier.StatusError,
				SafeText: "Ошибка: шлюз завершает работу",
			})
		default:
			return
		}
	}
}
