package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/igorsal/pr-sentinel/internal/models"
)

const noReviewableChangesSummary = "No reviewable changes"

func fileMarker(path string) string {
	return fmt.Sprintf("=== File: %s ===", path)
}

// analyze submits the reviewable part of diff to the analyzer. Several files
// are combined into one request and comments are attributed back to files.
func (o *Orchestrator) analyze(ctx context.Context, params models.ProcessPRParams, diff *models.PRDiff) (*models.AnalysisResult, error) {
	files := diff.ReviewableFiles()
	if len(files) == 0 {
		o.logger.Info("No reviewable changes, skipping analysis",
			"owner", params.Owner, "repo", params.Repo, "number", params.PullNumber,
			"files", len(diff.Files),
		)
		return &models.AnalysisResult{
			Summary:  noReviewableChangesSummary,
			Comments: []models.AnalysisComment{},
			Approval: models.ApprovalComment,
			Score:    models.MaxScore,
		}, nil
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}

	reviewCtx := models.ReviewContext{
		Owner:      params.Owner,
		Repo:       params.Repo,
		PullNumber: params.PullNumber,
		Title:      params.Title,
		Files:      names,
	}

	var diffText string
	if len(files) == 1 {
		reviewCtx.FilePath = files[0].Filename
		diffText = files[0].Patch
	} else {
		diffText = combinePatches(files)
	}

	result, err := o.analyzer.Submit(ctx, diffText, reviewCtx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("analyzer returned no result")
	}

	attributeComments(result.Comments, names)
	return result, nil
}

func combinePatches(files []models.DiffFile) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fileMarker(f.Filename))
		b.WriteString("\n")
		b.WriteString(f.Patch)
	}
	return b.String()
}

// attributeComments fills in File for comments that have none: the first
// candidate whose name appears in the comment text wins, else the first
// candidate.
func attributeComments(comments []models.AnalysisComment, candidates []string) {
	if len(candidates) == 0 {
		return
	}
	for i := range comments {
		if comments[i].File != "" {
			continue
		}
		comments[i].File = matchFile(comments[i].Text, candidates)
	}
}

func matchFile(text string, candidates []string) string {
	lower := strings.ToLower(text)
	for _, name := range candidates {
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}
	return candidates[0]
}
