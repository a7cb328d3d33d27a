package models

// Approval is the analyzer's overall verdict
type Approval string

const (
	ApprovalApprove        Approval = "approve"
	ApprovalRequestChanges Approval = "request_changes"
	ApprovalComment        Approval = "comment"
)

// Valid reports whether a is one of the known verdicts
func (a Approval) Valid() bool {
	switch a {
	case ApprovalApprove, ApprovalRequestChanges, ApprovalComment:
		return true
	}
	return false
}

const (
	MinScore = 1
	MaxScore = 10
)

// ReviewContext accompanies a diff submitted for analysis
type ReviewContext struct {
	Owner      string   `json:"owner"`
	Repo       string   `json:"repo"`
	PullNumber int      `json:"pull_number"`
	Title      string   `json:"title,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	Files      []string `json:"files,omitempty"`
}

// AnalysisComment is a single finding returned by the analyzer.
// File may be empty when the analyzer did not attribute it.
type AnalysisComment struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Text       string `json:"text"`
	Suggestion string `json:"suggestion,omitempty"`
}

// AnalysisResult is the structured verdict of the analyzer
type AnalysisResult struct {
	Summary  string            `json:"summary"`
	Comments []AnalysisComment `json:"comments"`
	Approval Approval          `json:"approval"`
	Score    int               `json:"score"`
}
