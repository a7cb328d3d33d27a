// Package worker runs reviews for pull requests detected by the poller.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/igorsal/pr-sentinel/internal/bus"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
)

const DefaultQueueSize = 100

// Config configures the worker
type Config struct {
	QueueSize    int
	ReviewDrafts bool
}

// Worker consumes new_pr and updated_pr notifications and reviews each
// pull request through the orchestrator, one at a time.
type Worker struct {
	orchestrator interfaces.Orchestrator
	bus          *bus.Bus
	config       Config
	logger       interfaces.Logger
	metrics      interfaces.MetricsCollector

	jobs chan models.PRChange

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	doneCh      chan struct{}
	unsubscribe []func()
}

// New creates a stopped worker
func New(orchestrator interfaces.Orchestrator, b *bus.Bus, cfg Config, logger interfaces.Logger, metrics interfaces.MetricsCollector) (*Worker, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("worker: orchestrator is required")
	}
	if cfg.QueueSize < 0 {
		return nil, fmt.Errorf("worker: queue size must not be negative, got %d", cfg.QueueSize)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	return &Worker{
		orchestrator: orchestrator,
		bus:          b,
		config:       cfg,
		logger:       logger.With("component", "worker"),
		metrics:      metrics,
		jobs:         make(chan models.PRChange, cfg.QueueSize),
	}, nil
}

// Start subscribes to change notifications and starts processing. Calling
// Start on a running worker does nothing.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.unsubscribe = []func(){
		w.bus.Subscribe(bus.TopicNewPR, w.enqueue),
		w.bus.Subscribe(bus.TopicUpdatedPR, w.enqueue),
	}

	go w.run(runCtx, w.doneCh)
	w.logger.Info("Review worker started", "queue_size", w.config.QueueSize, "review_drafts", w.config.ReviewDrafts)
}

// Stop unsubscribes, cancels the in-flight review and waits for the loop to
// exit. Queued jobs are discarded.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	for _, unsubscribe := range w.unsubscribe {
		unsubscribe()
	}
	w.unsubscribe = nil
	cancel, doneCh := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()
	<-doneCh

	dropped := 0
drain:
	for {
		select {
		case <-w.jobs:
			dropped++
		default:
			break drain
		}
	}
	w.metrics.SetGauge("worker_queue_depth", 0, nil)
	w.logger.Info("Review worker stopped", "discarded_jobs", dropped)
}

// release unsubscribes when the parent context ends the loop, so the worker
// can be started again. Stop has already done this when it cancelled.
func (w *Worker) release(doneCh chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running || w.doneCh != doneCh {
		return
	}
	w.running = false
	for _, unsubscribe := range w.unsubscribe {
		unsubscribe()
	}
	w.unsubscribe = nil
	w.cancel()
	w.logger.Info("Review worker stopped: context cancelled", "queued_jobs", len(w.jobs))
}

// IsRunning reports whether the worker is subscribed and processing
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// QueueDepth returns the number of waiting jobs
func (w *Worker) QueueDepth() int {
	return len(w.jobs)
}

func (w *Worker) enqueue(e bus.Event) {
	change, ok := e.Payload.(models.PRChange)
	if !ok {
		w.logger.Warn("Ignoring notification with unexpected payload", "topic", string(e.Topic))
		return
	}
	pr := change.PullRequest
	log := w.logger.With("repository", change.Repository.FullName(), "number", pr.Number)

	if pr.Draft && !w.config.ReviewDrafts {
		log.Debug("Skipping draft pull request")
		w.metrics.IncrementCounter("worker_jobs_total", map[string]string{"outcome": "skipped_draft"})
		return
	}

	select {
	case w.jobs <- change:
		w.metrics.SetGauge("worker_queue_depth", float64(len(w.jobs)), nil)
		log.Debug("Review queued", "topic", string(e.Topic))
	default:
		log.Warn("Review queue full, dropping pull request", "queue_size", w.config.QueueSize)
		w.metrics.IncrementCounter("worker_jobs_total", map[string]string{"outcome": "dropped"})
	}
}

func (w *Worker) run(ctx context.Context, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-ctx.Done():
			w.release(doneCh)
			return
		case change := <-w.jobs:
			w.metrics.SetGauge("worker_queue_depth", float64(len(w.jobs)), nil)
			w.process(ctx, change)
		}
	}
}

func (w *Worker) process(ctx context.Context, change models.PRChange) {
	pr := change.PullRequest
	result := w.orchestrator.ProcessPR(ctx, models.ProcessPRParams{
		Owner:      change.Repository.Owner,
		Repo:       change.Repository.Name,
		PullNumber: pr.Number,
		Title:      pr.Title,
		Author:     pr.AuthorLogin,
	})

	outcome := "succeeded"
	if !result.Success {
		outcome = "failed"
		w.logger.Warn("Review failed",
			"repository", change.Repository.FullName(),
			"number", pr.Number,
			"error_code", string(result.ErrorCode),
			"error", result.Error,
		)
	}
	w.metrics.IncrementCounter("worker_jobs_total", map[string]string{"outcome": outcome})

	w.bus.Publish(bus.TopicReviewCompleted, models.ReviewCompleted{
		Source:     "poller",
		Owner:      change.Repository.Owner,
		Repo:       change.Repository.Name,
		PullNumber: pr.Number,
		Result:     result,
	})
}
