package models

import "time"

// ReviewStatus is the persisted status of a review
type ReviewStatus string

const (
	ReviewStatusApproved         ReviewStatus = "APPROVED"
	ReviewStatusChangesRequested ReviewStatus = "CHANGES_REQUESTED"
	ReviewStatusInProgress       ReviewStatus = "IN_PROGRESS"
)

// CommentSeverity is the persisted severity of a review comment
type CommentSeverity string

const (
	SeverityCritical   CommentSeverity = "CRITICAL"
	SeverityError      CommentSeverity = "ERROR"
	SeverityWarning    CommentSeverity = "WARNING"
	SeverityInfo       CommentSeverity = "INFO"
	SeveritySuggestion CommentSeverity = "SUGGESTION"
)

// CreateReviewInput is what the orchestrator hands to the review store
type CreateReviewInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      ReviewStatus         `json:"status"`
	Owner       string               `json:"owner"`
	Repo        string               `json:"repo"`
	PullNumber  int                  `json:"pull_number"`
	Author      string               `json:"author"`
	Score       int                  `json:"score"`
	Comments    []CreateCommentInput `json:"comments"`
}

// CreateCommentInput is a single comment of a review to create
type CreateCommentInput struct {
	FilePath string          `json:"file_path"`
	Line     int             `json:"line"`
	Severity CommentSeverity `json:"severity"`
	Category string          `json:"category"`
	Body     string          `json:"body"`
}

// Review is a persisted review
type Review struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      ReviewStatus    `json:"status"`
	Owner       string          `json:"owner"`
	Repo        string          `json:"repo"`
	PullNumber  int             `json:"pull_number"`
	Author      string          `json:"author"`
	Score       int             `json:"score"`
	Comments    []ReviewComment `json:"comments"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReviewComment is a persisted review comment
type ReviewComment struct {
	ID       string          `json:"id"`
	FilePath string          `json:"file_path"`
	Line     int             `json:"line"`
	Severity CommentSeverity `json:"severity"`
	Category string          `json:"category"`
	Body     string          `json:"body"`
}
