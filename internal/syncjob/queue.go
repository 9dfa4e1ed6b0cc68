package syncjob

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dreamware/replset/internal/cluster"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("sync queue closed")

// Runner executes one sync job. It reports whether a successor job is needed
// to continue the catch-up walk.
type Runner interface {
	Run(ctx context.Context, job *Job) (requeue bool, err error)
}

// Enqueuer is the enqueue-only view of a Queue handed to planners and the
// state machine.
type Enqueuer interface {
	Enqueue(wallet, source, target string, immediate bool) (*Job, error)
}

// Queue is a FIFO sync queue with a fixed-size worker pool. Jobs are
// de-duplicated against the shared pending index while queued; completed and
// failed jobs are not retained.
type Queue struct {
	kind   cluster.SyncKind
	dedup  *Dedup
	runner Runner
	log    *slog.Logger

	mu     sync.Mutex
	jobs   []*Job
	active int
	closed bool
	signal chan struct{}

	workers int
	wg      sync.WaitGroup
}

// NewQueue creates a queue for kind with the given worker count. The dedup
// index may be shared with the sibling queue; fingerprints embed the kind so
// the two never collide.
func NewQueue(kind cluster.SyncKind, dedup *Dedup, runner Runner, workers int, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		kind:    kind,
		dedup:   dedup,
		runner:  runner,
		workers: workers,
		signal:  make(chan struct{}, 1),
		log:     log.With("queue", string(kind)),
	}
}

// Enqueue creates a pending job unless one already exists for the same
// fingerprint, in which case the existing handle is returned. Losing the
// record race also returns the winning handle.
func (q *Queue) Enqueue(wallet, source, target string, immediate bool) (*Job, error) {
	job := newJob(q.kind, wallet, source, target, immediate)
	fp := job.Fingerprint()

	if existing := q.dedup.Lookup(fp); existing != nil {
		return existing, nil
	}
	if !q.dedup.TryRecord(fp, job) {
		if winner := q.dedup.Lookup(fp); winner != nil {
			return winner, nil
		}
		// The winner activated between our record and lookup; queue ours.
		if !q.dedup.TryRecord(fp, job) {
			return q.dedup.Lookup(fp), nil
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dedup.Remove(fp)
		return nil, ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)
	q.notifyLocked()
	q.mu.Unlock()

	q.log.Debug("job enqueued",
		"job_id", job.ID, "wallet", wallet, "target", target, "immediate", immediate)
	return job, nil
}

// Start launches the worker pool. Workers exit once the queue is empty and
// either ctx is canceled or the queue has been closed.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Close rejects further enqueues and wakes idle workers.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Active returns the number of jobs currently running.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		job := q.pop(ctx)
		if job == nil {
			return
		}

		// Pending -> active: free the fingerprint slot so a new pending job
		// may queue behind this one.
		q.dedup.Remove(job.Fingerprint())

		q.mu.Lock()
		q.active++
		q.mu.Unlock()

		requeue, err := q.runner.Run(ctx, job)

		q.mu.Lock()
		q.active--
		q.mu.Unlock()

		switch {
		case err != nil:
			q.log.Error("sync job failed",
				"job_id", job.ID, "wallet", job.Wallet, "target", job.Target, "err", err)
		case requeue:
			if _, err := q.Enqueue(job.Wallet, job.Source, job.Target, false); err != nil {
				q.log.Error("re-enqueue failed", "job_id", job.ID, "err", err)
			}
		}
	}
}

// pop returns the next job, blocking until one is available. It returns nil
// once ctx is canceled or the queue is closed and empty.
func (q *Queue) pop(ctx context.Context) *Job {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			if len(q.jobs) > 0 {
				q.notifyLocked()
			}
			q.mu.Unlock()
			return job
		}
		closed := q.closed
		q.mu.Unlock()

		if closed || ctx.Err() != nil {
			return nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil
		}
	}
}

func (q *Queue) notifyLocked() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
