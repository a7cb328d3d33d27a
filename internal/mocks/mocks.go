// Package mocks holds testify mocks of the external capabilities.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/igorsal/pr-sentinel/internal/models"
)

// SourceClient is a mock of interfaces.SourceClient
type SourceClient struct {
	mock.Mock
}

func (m *SourceClient) ListOpenPullRequests(ctx context.Context, owner, repo string) ([]models.DetectedPullRequest, error) {
	args := m.Called(ctx, owner, repo)
	prs, _ := args.Get(0).([]models.DetectedPullRequest)
	return prs, args.Error(1)
}

func (m *SourceClient) FetchDiff(ctx context.Context, owner, repo string, number int) (*models.PRDiff, error) {
	args := m.Called(ctx, owner, repo, number)
	diff, _ := args.Get(0).(*models.PRDiff)
	return diff, args.Error(1)
}

// Analyzer is a mock of interfaces.Analyzer
type Analyzer struct {
	mock.Mock
}

func (m *Analyzer) Submit(ctx context.Context, diffText string, reviewCtx models.ReviewContext) (*models.AnalysisResult, error) {
	args := m.Called(ctx, diffText, reviewCtx)
	result, _ := args.Get(0).(*models.AnalysisResult)
	return result, args.Error(1)
}

// ReviewStore is a mock of interfaces.ReviewStore
type ReviewStore struct {
	mock.Mock
}

func (m *ReviewStore) CreateReview(ctx context.Context, input models.CreateReviewInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *ReviewStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	args := m.Called(ctx, id)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *ReviewStore) ListReviews(ctx context.Context, owner, repo string, pullNumber int) ([]models.Review, error) {
	args := m.Called(ctx, owner, repo, pullNumber)
	reviews, _ := args.Get(0).([]models.Review)
	return reviews, args.Error(1)
}

// Orchestrator is a mock of interfaces.Orchestrator
type Orchestrator struct {
	mock.Mock
}

func (m *Orchestrator) ProcessPR(ctx context.Context, params models.ProcessPRParams) *models.ProcessPRResult {
	args := m.Called(ctx, params)
	result, _ := args.Get(0).(*models.ProcessPRResult)
	return result
}

func (m *Orchestrator) ProcessBatch(ctx context.Context, params []models.ProcessPRParams, onItem models.BatchItemCallback) []*models.ProcessPRResult {
	args := m.Called(ctx, params, onItem)
	results, _ := args.Get(0).([]*models.ProcessPRResult)
	return results
}
