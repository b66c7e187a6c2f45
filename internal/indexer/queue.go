package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/manualrag/internal/logger"
)

var (
	// ErrQueueClosed is returned by tasks submitted after Close
	ErrQueueClosed = errors.New("index queue closed")
	// ErrQueueFull is returned by tasks submitted while the backlog is full
	ErrQueueFull = errors.New("index queue full")
)

// Queue defaults
const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 64
	DefaultTaskTimeout = 10 * time.Minute
)

// Job is one manual to index, from extracted text or from PDF bytes
type Job struct {
	ManualID string
	Text     string
	PDF      []byte
}

// TaskState is the lifecycle of a submitted job
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Task tracks a submitted job until it finishes
type Task struct {
	ManualID string

	mu    sync.Mutex
	state TaskState
	err   error
	stats *Statistics
	done  chan struct{}
}

func newTask(manualID string) *Task {
	return &Task{ManualID: manualID, state: TaskQueued, done: make(chan struct{})}
}

// Done is closed when the task finishes
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done
func (t *Task) Wait(ctx context.Context) (*Statistics, error) {
	select {
	case <-t.done:
		return t.Stats(), t.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns the current state
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure, nil while running or on success
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Stats returns the indexing statistics once succeeded
func (t *Task) Stats() *Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Task) setRunning() {
	t.mu.Lock()
	t.state = TaskRunning
	t.mu.Unlock()
}

func (t *Task) finish(stats *Statistics, err error) {
	t.mu.Lock()
	if err != nil {
		t.state = TaskFailed
	} else {
		t.state = TaskSucceeded
	}
	t.stats = stats
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// QueueConfig sizes the worker pool
type QueueConfig struct {
	Workers     int
	Size        int
	TaskTimeout time.Duration
}

type queued struct {
	job  Job
	task *Task
}

// Queue runs index jobs on a fixed worker pool. Submit never blocks, so
// callers on a latency-sensitive path can hand off indexing and move on.
type Queue struct {
	indexer *Indexer
	cfg     QueueConfig
	logger  *slog.Logger

	jobs   chan queued
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight map[string]*Task
}

// NewQueue starts cfg.Workers workers
func NewQueue(idx *Indexer, cfg QueueConfig, l *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultQueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		indexer:  idx,
		cfg:      cfg,
		logger:   logger.OrNop(l),
		jobs:     make(chan queued, cfg.Size),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]*Task),
	}

	for i := 0; i < cfg.Workers; i++ {
		q.group.Go(q.worker)
	}
	return q
}

// Submit enqueues job and returns its task. A job for a manual that is
// already queued or running returns the existing task.
func (q *Queue) Submit(job Job) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		t := newTask(job.ManualID)
		t.finish(nil, ErrQueueClosed)
		return t
	}
	if t, ok := q.inflight[job.ManualID]; ok {
		return t
	}

	t := newTask(job.ManualID)
	select {
	case q.jobs <- queued{job: job, task: t}:
		q.inflight[job.ManualID] = t
	default:
		q.logger.Warn("index_queue_full", slog.String("manual_id", job.ManualID))
		t.finish(nil, ErrQueueFull)
	}
	return t
}

// Close stops accepting jobs, waits for queued jobs to finish and stops the workers
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	err := q.group.Wait()
	q.cancel()
	return err
}

// Abort cancels running jobs, then closes the queue
func (q *Queue) Abort() error {
	q.cancel()
	return q.Close()
}

func (q *Queue) worker() error {
	for item := range q.jobs {
		q.run(item)
	}
	return nil
}

func (q *Queue) run(item queued) {
	item.task.setRunning()

	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.TaskTimeout)
	defer cancel()

	var stats *Statistics
	var err error
	if item.job.Text != "" {
		stats, err = q.indexer.IndexManual(ctx, item.job.ManualID, item.job.Text)
	} else {
		stats, err = q.indexer.IndexPDF(ctx, item.job.ManualID, item.job.PDF)
	}

	q.mu.Lock()
	delete(q.inflight, item.job.ManualID)
	q.mu.Unlock()

	item.task.finish(stats, err)
	q.logger.Debug("index_task_finished",
		slog.String("manual_id", item.job.ManualID),
		slog.String("state", string(item.task.State())))
}
