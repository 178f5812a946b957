package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/pkg/logging"
)

// Task is one best-effort side effect. Failures are logged and never
// retried; callers do not await completion.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue runs one-shot background tasks off the caller's path. Used for the
// read watermark report and notification dispatch.
type Queue struct {
	tasks   chan Task
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		tasks:   make(chan Task, buffer),
		logger:  logging.GetLogger().With(zap.String("component", "notify-queue")),
		timeout: 30 * time.Second,
	}
}

// Start launches the worker. Stops when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.done = make(chan struct{})
	q.mu.Unlock()

	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-q.tasks:
				q.run(ctx, task)
			}
		}
	}()
}

func (q *Queue) run(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	if err := task.Run(taskCtx); err != nil {
		q.logger.Warn("Background task failed",
			zap.String("task", task.Name),
			zap.Error(err))
		return
	}
	q.logger.Debug("Background task completed", zap.String("task", task.Name))
}

// Submit enqueues a task. When the queue is full the task is dropped with
// a warning, consistent with the best-effort contract.
func (q *Queue) Submit(task Task) {
	select {
	case q.tasks <- task:
	default:
		q.logger.Warn("Background queue full, dropping task", zap.String("task", task.Name))
	}
}

// Wait blocks until the worker has exited after context cancellation.
func (q *Queue) Wait() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}
