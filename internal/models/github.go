package models

import (
	"fmt"
	"strings"
	"time"
)

// GitHubEventEnvelope holds the fields every repository-scoped event shares.
// PullRequest is only present on pull_request* events.
type GitHubEventEnvelope struct {
	Action      string       `json:"action"`
	Number      int          `json:"number"`
	Zen         string       `json:"zen,omitempty"`
	HookID      int64        `json:"hook_id,omitempty"`
	PullRequest *PullRequest `json:"pull_request,omitempty"`
	Repository  *Repository  `json:"repository,omitempty"`
	Sender      User         `json:"sender"`
}

// PullRequest represents a GitHub pull request
type PullRequest struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Draft     bool       `json:"draft"`
	User      User       `json:"user"`
	Head      Branch     `json:"head"`
	Base      Branch     `json:"base"`
	DiffURL   string     `json:"diff_url"`
	HTMLURL   string     `json:"html_url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
}

// Repository represents a GitHub repository
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    User   `json:"owner"`
	HTMLURL  string `json:"html_url"`
}

// User represents a GitHub user
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Branch represents a GitHub branch
type Branch struct {
	Label string `json:"label"`
	Ref   string `json:"ref"`
	SHA   string `json:"sha"`
}

// MonitoredRepository identifies a repository the poller watches
type MonitoredRepository struct {
	Owner string `json:"owner" validate:"required"`
	Name  string `json:"name" validate:"required"`
}

// FullName returns owner/name
func (r MonitoredRepository) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository parses "owner/name"
func ParseRepository(s string) (MonitoredRepository, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return MonitoredRepository{}, fmt.Errorf("invalid repository %q, expected owner/name", s)
	}
	return MonitoredRepository{Owner: parts[0], Name: parts[1]}, nil
}

// PRState is the state of a detected pull request
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
)

// DetectedPullRequest is one entry of a repository's open pull request list
// as observed by a single poll.
type DetectedPullRequest struct {
	ID          int64     `json:"id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       PRState   `json:"state"`
	Draft       bool      `json:"draft"`
	Owner       string    `json:"owner"`
	Repo        string    `json:"repo"`
	HTMLURL     string    `json:"html_url"`
	DiffURL     string    `json:"diff_url"`
	HeadRef     string    `json:"head_ref"`
	BaseRef     string    `json:"base_ref"`
	AuthorLogin string    `json:"author_login"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key identifies the pull request in the seen-PR ledger
func (pr DetectedPullRequest) Key() string {
	return LedgerKey(pr.Owner, pr.Repo, pr.Number)
}

// LedgerKey formats owner/repo/number
func LedgerKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%d", owner, repo, number)
}
