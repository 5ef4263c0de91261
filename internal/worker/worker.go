package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// mailboxLockName coordinates mailbox polling across instances. Only one
// worker drains the mailbox per interval; everything downstream is
// idempotent on the document fingerprint anyway.
const mailboxLockName = "mailbox-poll"

// Publisher is the slice of the publish service the worker drives.
type Publisher interface {
	Publish(ctx context.Context, itemID string) (*domain.QueueItem, error)
	MarkFailed(ctx context.Context, itemID string, reason string) error
}

// Worker runs the background halves of the pipeline: the mailbox poll
// loop and the publish-retry task processors.
type Worker struct {
	taskQueue driven.TaskQueue
	publisher Publisher
	intake    driving.IntakeService
	lock      driven.DistributedLock
	logger    *slog.Logger

	// Configuration
	concurrency     int
	pollInterval    time.Duration // task dequeue idle sleep
	mailboxInterval time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config holds configuration for the worker.
type Config struct {
	TaskQueue driven.TaskQueue
	Publisher Publisher
	Intake    driving.IntakeService
	Lock      driven.DistributedLock
	Logger    *slog.Logger

	// Concurrency is the number of concurrent task processors.
	Concurrency int

	// PollInterval is how long a processor sleeps when the queue is empty.
	PollInterval time.Duration

	// MailboxInterval is how often the mailbox is drained.
	MailboxInterval time.Duration
}

// New creates a worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	mailboxInterval := cfg.MailboxInterval
	if mailboxInterval <= 0 {
		mailboxInterval = 60 * time.Second
	}

	return &Worker{
		taskQueue:       cfg.TaskQueue,
		publisher:       cfg.Publisher,
		intake:          cfg.Intake,
		lock:            cfg.Lock,
		logger:          logger,
		concurrency:     concurrency,
		pollInterval:    pollInterval,
		mailboxInterval: mailboxInterval,
	}
}

// Start begins the worker loops.
// It runs until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"mailbox_interval", w.mailboxInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	if w.intake != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.mailboxLoop(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// mailboxLoop drains the mailbox on a fixed interval, guarded by the
// distributed lock so multi-instance deployments poll once.
func (w *Worker) mailboxLoop(ctx context.Context) {
	logger := w.logger.With("loop", "mailbox")
	logger.Info("mailbox loop started", "interval", w.mailboxInterval)

	ticker := time.NewTicker(w.mailboxInterval)
	defer ticker.Stop()

	// First poll happens immediately, not after one interval.
	w.pollMailboxOnce(ctx, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("mailbox loop context cancelled")
			return
		case <-w.stopCh:
			logger.Info("mailbox loop stop signal received")
			return
		case <-ticker.C:
			w.pollMailboxOnce(ctx, logger)
		}
	}
}

func (w *Worker) pollMailboxOnce(ctx context.Context, logger *slog.Logger) {
	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx, mailboxLockName, w.mailboxInterval*2)
		if err != nil {
			logger.Error("failed to acquire mailbox lock", "error", err)
			return
		}
		if !acquired {
			logger.Debug("mailbox lock held elsewhere, skipping poll")
			return
		}
		defer func() {
			if err := w.lock.Release(ctx, mailboxLockName); err != nil {
				logger.Warn("failed to release mailbox lock", "error", err)
			}
		}()
	}

	handled, err := w.intake.PollMailbox(ctx)
	if err != nil {
		logger.Error("mailbox poll failed", "error", err)
		return
	}
	if handled > 0 {
		logger.Info("mailbox drained", "messages", handled)
	}
}

// processLoop is the main processing loop for a task processor goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			w.idle(ctx)
			continue
		}

		if task == nil {
			w.idle(ctx)
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// idle sleeps one poll interval, waking early on shutdown.
func (w *Worker) idle(ctx context.Context) {
	select {
	case <-time.After(w.pollInterval):
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

// processTask processes a single task.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type)
	logger.Info("processing task")

	startTime := time.Now()
	var err error

	switch task.Type {
	case domain.TaskTypePublishItem:
		err = w.handlePublishItem(ctx, task)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		// Attempts was already incremented at dequeue. When retries run
		// out the Nack below lands the task in failed, but the queue item
		// stays approved with its publish error stamped, so an operator
		// can retry through the API once the record system recovers.
		if !task.CanRetry() {
			logger.Warn("publish retries exhausted, item left for operator retry",
				"item_id", task.Payload["item_id"])
		}

		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)

	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handlePublishItem retries the upload of an approved queue item.
func (w *Worker) handlePublishItem(ctx context.Context, task *domain.Task) error {
	itemID := task.Payload["item_id"]
	if itemID == "" {
		return fmt.Errorf("item_id not found in task payload")
	}

	_, err := w.publisher.Publish(ctx, itemID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrAlreadyPublished):
		// A concurrent retry or an operator beat us to it.
		return nil
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
		// The item was rejected or failed since the task was scheduled;
		// retrying cannot help.
		w.logger.Info("dropping publish retry for settled item", "item_id", itemID, "reason", err)
		return nil
	case errors.Is(err, domain.ErrBlobMissing), errors.Is(err, domain.ErrMissingIdentity):
		// No retry fixes a lost document or an item with no resolved
		// patient. Move the item to failed so it surfaces to operators.
		if failErr := w.publisher.MarkFailed(ctx, itemID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark item failed", "item_id", itemID, "error", failErr)
			return err
		}
		return nil
	default:
		return err
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
