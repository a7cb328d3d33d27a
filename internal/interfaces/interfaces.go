package interfaces

import (
	"context"

	"github.com/igorsal/pr-sentinel/internal/models"
)

// SourceClient defines the interface for the source repository host
type SourceClient interface {
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]models.DetectedPullRequest, error)
	FetchDiff(ctx context.Context, owner, repo string, number int) (*models.PRDiff, error)
}

// Analyzer defines the interface for the AI review backend
type Analyzer interface {
	Submit(ctx context.Context, diffText string, reviewCtx models.ReviewContext) (*models.AnalysisResult, error)
}

// ReviewStore defines the interface for review persistence
type ReviewStore interface {
	CreateReview(ctx context.Context, input models.CreateReviewInput) (string, error)
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviews(ctx context.Context, owner, repo string, pullNumber int) ([]models.Review, error)
}

// Orchestrator defines the interface for PR review processing
type Orchestrator interface {
	ProcessPR(ctx context.Context, params models.ProcessPRParams) *models.ProcessPRResult
	ProcessBatch(ctx context.Context, params []models.ProcessPRParams, onItem models.BatchItemCallback) []*models.ProcessPRResult
}

// Logger defines the logging interface
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Fatal(msg string, err error, fields ...interface{})
	With(fields ...interface{}) Logger
}

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string)
	RecordDuration(name string, duration float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// CircuitBreaker defines the interface for circuit breaker pattern
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
	Name() string
	State() string
}
