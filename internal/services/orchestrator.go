package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
)

// OrchestratorConfig configures review processing
type OrchestratorConfig struct {
	// MaxRetries is the total number of diff fetch attempts
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between attempts
	RetryDelay time.Duration
	// DryRun skips persistence
	DryRun bool
}

// Orchestrator turns an (owner, repo, number) triple into a persisted review
type Orchestrator struct {
	source    interfaces.SourceClient
	analyzer  interfaces.Analyzer
	store     interfaces.ReviewStore
	config    OrchestratorConfig
	logger    interfaces.Logger
	metrics   interfaces.MetricsCollector
	validator *validator.Validate
}

// NewOrchestrator validates cfg, applies defaults and creates an orchestrator.
// store may be nil only in dry-run mode.
func NewOrchestrator(source interfaces.SourceClient, analyzer interfaces.Analyzer, store interfaces.ReviewStore, cfg OrchestratorConfig, logger interfaces.Logger, metrics interfaces.MetricsCollector) (*Orchestrator, error) {
	if source == nil || analyzer == nil {
		return nil, errors.New("orchestrator: source client and analyzer are required")
	}
	if store == nil && !cfg.DryRun {
		return nil, errors.New("orchestrator: review store is required unless dry run is enabled")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("orchestrator: max retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("orchestrator: retry delay must not be negative, got %s", cfg.RetryDelay)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Orchestrator{
		source:    source,
		analyzer:  analyzer,
		store:     store,
		config:    cfg,
		logger:    logger.With("component", "orchestrator"),
		metrics:   metrics,
		validator: validator.New(),
	}, nil
}

// Config returns the effective configuration
func (o *Orchestrator) Config() OrchestratorConfig {
	return o.config
}

// ProcessPR fetches the diff, analyzes it and persists the review, reporting
// each phase through params.OnStatus. Failures come back as a tagged result.
func (o *Orchestrator) ProcessPR(ctx context.Context, params models.ProcessPRParams) *models.ProcessPRResult {
	start := time.Now()
	tracker := newPhaseTracker(params.OnStatus, o.metrics)
	target := fmt.Sprintf("%s/%s#%d", params.Owner, params.Repo, params.PullNumber)

	fail := func(code models.ErrorCode, err error, analysis *models.AnalysisResult) *models.ProcessPRResult {
		tracker.fail(err.Error())
		o.logger.Error("Pull request review failed", err,
			"target", target,
			"error_code", string(code),
		)
		return o.finish(start, &models.ProcessPRResult{
			Success:        false,
			AnalysisResult: analysis,
			Error:          err.Error(),
			ErrorCode:      code,
		})
	}

	if err := o.validator.Struct(params); err != nil {
		return fail(models.ErrCodeInvalidParams, fmt.Errorf("invalid parameters: %w", err), nil)
	}

	o.logger.Info("Starting pull request review", "target", target, "dry_run", o.config.DryRun)

	tracker.enter(models.PhaseFetchingDiff, fmt.Sprintf("Fetching diff for %s", target), 10)
	diff, err := o.fetchDiffWithRetry(ctx, params.Owner, params.Repo, params.PullNumber)
	if err != nil {
		return fail(models.ErrCodeDiffFetchFailed, fmt.Errorf("failed to fetch diff: %w", err), nil)
	}

	tracker.enter(models.PhaseReviewing, fmt.Sprintf("Reviewing %d changed files", len(diff.Files)), 40)
	analysis, err := o.analyze(ctx, params, diff)
	if err != nil {
		return fail(models.ErrCodeAIReviewFailed, fmt.Errorf("AI review failed: %w", err), nil)
	}

	if o.config.DryRun {
		tracker.enter(models.PhaseCompleted, "Review completed (dry run, not saved)", 100)
		o.logger.Info("Pull request review completed without saving", "target", target, "score", analysis.Score)
		return o.finish(start, &models.ProcessPRResult{Success: true, AnalysisResult: analysis})
	}

	tracker.enter(models.PhaseSaving, "Saving review", 80)
	reviewID, err := o.store.CreateReview(ctx, buildReviewInput(params, analysis))
	if err != nil {
		return fail(models.ErrCodeDBSaveFailed, fmt.Errorf("failed to save review: %w", err), analysis)
	}

	tracker.enter(models.PhaseCompleted, "Review completed", 100)
	o.logger.Info("Pull request review completed",
		"target", target,
		"review_id", reviewID,
		"approval", string(analysis.Approval),
		"score", analysis.Score,
		"comments", len(analysis.Comments),
	)

	return o.finish(start, &models.ProcessPRResult{
		Success:        true,
		ReviewID:       reviewID,
		AnalysisResult: analysis,
	})
}

// ProcessBatch processes each request in order, one at a time, and returns
// one result per input. A failed item does not stop the batch.
func (o *Orchestrator) ProcessBatch(ctx context.Context, params []models.ProcessPRParams, onItem models.BatchItemCallback) []*models.ProcessPRResult {
	results := make([]*models.ProcessPRResult, 0, len(params))
	for i, p := range params {
		result := o.ProcessPR(ctx, p)
		results = append(results, result)
		if onItem != nil {
			onItem(i, len(params), result)
		}
	}
	return results
}

func (o *Orchestrator) finish(start time.Time, result *models.ProcessPRResult) *models.ProcessPRResult {
	elapsed := time.Since(start)
	result.DurationMs = elapsed.Milliseconds()

	status := "success"
	if !result.Success {
		status = "failure"
	}
	o.metrics.IncrementCounter("reviews_total", map[string]string{"status": status, "error_code": string(result.ErrorCode)})
	o.metrics.RecordDuration("review_duration_seconds", elapsed.Seconds(), map[string]string{"status": status})
	return result
}

// phaseTracker reports phase transitions and times each phase
type phaseTracker struct {
	onStatus models.StatusCallback
	metrics  interfaces.MetricsCollector
	current  models.Phase
	progress int
	since    time.Time
}

func newPhaseTracker(onStatus models.StatusCallback, metrics interfaces.MetricsCollector) *phaseTracker {
	return &phaseTracker{onStatus: onStatus, metrics: metrics}
}

func (t *phaseTracker) enter(phase models.Phase, message string, progress int) {
	t.closeCurrent()
	t.current = phase
	t.progress = progress
	t.since = time.Now()
	if t.onStatus != nil {
		t.onStatus(models.StatusUpdate{Phase: phase, Message: message, Progress: progress})
	}
}

func (t *phaseTracker) fail(message string) {
	t.closeCurrent()
	t.current = models.PhaseFailed
	if t.onStatus != nil {
		t.onStatus(models.StatusUpdate{Phase: models.PhaseFailed, Message: message, Progress: t.progress})
	}
}

func (t *phaseTracker) closeCurrent() {
	if t.current == "" || t.current == models.PhaseCompleted || t.current == models.PhaseFailed {
		return
	}
	t.metrics.RecordDuration("review_phase_duration_seconds", time.Since(t.since).Seconds(),
		map[string]string{"phase": string(t.current)})
}
