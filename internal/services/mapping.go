package services

import (
	"fmt"
	"strings"

	"github.com/igorsal/pr-sentinel/internal/models"
)

func reviewStatus(approval models.Approval) models.ReviewStatus {
	switch approval {
	case models.ApprovalApprove:
		return models.ReviewStatusApproved
	case models.ApprovalRequestChanges:
		return models.ReviewStatusChangesRequested
	default:
		return models.ReviewStatusInProgress
	}
}

func normalizeSeverity(severity string) models.CommentSeverity {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return models.SeverityCritical
	case "error", "high":
		return models.SeverityError
	case "warning", "medium":
		return models.SeverityWarning
	case "info", "low":
		return models.SeverityInfo
	case "suggestion":
		return models.SeveritySuggestion
	default:
		return models.SeverityInfo
	}
}

func commentBody(c models.AnalysisComment) string {
	if strings.TrimSpace(c.Suggestion) == "" {
		return c.Text
	}
	return fmt.Sprintf("%s\n\n**Suggested fix:**\n```\n%s\n```", c.Text, c.Suggestion)
}

func reviewTitle(params models.ProcessPRParams) string {
	if params.Title != "" {
		return fmt.Sprintf("Review: %s", params.Title)
	}
	return fmt.Sprintf("Review: %s/%s#%d", params.Owner, params.Repo, params.PullNumber)
}

func buildReviewInput(params models.ProcessPRParams, analysis *models.AnalysisResult) models.CreateReviewInput {
	comments := make([]models.CreateCommentInput, 0, len(analysis.Comments))
	for _, c := range analysis.Comments {
		comments = append(comments, models.CreateCommentInput{
			FilePath: c.File,
			Line:     c.Line,
			Severity: normalizeSeverity(c.Severity),
			Category: c.Category,
			Body:     commentBody(c),
		})
	}

	return models.CreateReviewInput{
		Title:       reviewTitle(params),
		Description: analysis.Summary,
		Status:      reviewStatus(analysis.Approval),
		Owner:       params.Owner,
		Repo:        params.Repo,
		PullNumber:  params.PullNumber,
		Author:      params.Author,
		Score:       analysis.Score,
		Comments:    comments,
	}
}
