package models

// Phase is a step of review processing
type Phase string

const (
	PhaseFetchingDiff Phase = "fetching_diff"
	PhaseReviewing    Phase = "reviewing"
	PhaseSaving       Phase = "saving"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// StatusUpdate is reported to the caller before each phase starts
type StatusUpdate struct {
	Phase    Phase  `json:"phase"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// StatusCallback receives phase transitions
type StatusCallback func(StatusUpdate)

// ErrorCode classifies a failed ProcessPR call
type ErrorCode string

const (
	ErrCodeInvalidParams   ErrorCode = "INVALID_PARAMS"
	ErrCodeDiffFetchFailed ErrorCode = "DIFF_FETCH_FAILED"
	ErrCodeAIReviewFailed  ErrorCode = "AI_REVIEW_FAILED"
	ErrCodeDBSaveFailed    ErrorCode = "DB_SAVE_FAILED"
)

// ProcessPRParams identifies the pull request to review
type ProcessPRParams struct {
	Owner      string         `json:"owner" validate:"required"`
	Repo       string         `json:"repo" validate:"required"`
	PullNumber int            `json:"pull_number" validate:"gt=0"`
	Title      string         `json:"title,omitempty"`
	Author     string         `json:"author,omitempty"`
	OnStatus   StatusCallback `json:"-"`
}

// ProcessPRResult is the outcome of a ProcessPR call. Success and ErrorCode
// are mutually exclusive.
type ProcessPRResult struct {
	Success        bool            `json:"success"`
	ReviewID       string          `json:"review_id,omitempty"`
	AnalysisResult *AnalysisResult `json:"analysis_result,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorCode      ErrorCode       `json:"error_code,omitempty"`
	DurationMs     int64           `json:"duration_ms"`
}

// BatchItemCallback reports progress of a batch run
type BatchItemCallback func(index, total int, result *ProcessPRResult)
