// Package github adapts the GitHub REST API to interfaces.SourceClient.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v71/github"

	"github.com/igorsal/pr-sentinel/internal/config"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	"github.com/igorsal/pr-sentinel/pkg/breaker"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

const (
	serviceName    = "github"
	defaultPerPage = 100
	defaultTimeout = 30 * time.Second
)

// Client lists pull requests and fetches their file diffs
type Client struct {
	api            *gh.Client
	perPage        int
	timeout        time.Duration
	logger         interfaces.Logger
	metrics        interfaces.MetricsCollector
	circuitBreaker interfaces.CircuitBreaker
}

// NewClient creates a GitHub API client guarded by a circuit breaker
func NewClient(cfg config.GitHubConfig, logger interfaces.Logger, metrics interfaces.MetricsCollector) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PerPage <= 0 || cfg.PerPage > 100 {
		cfg.PerPage = defaultPerPage
	}

	api := gh.NewClient(&http.Client{Timeout: cfg.Timeout})
	if cfg.Token != "" {
		api = api.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github: invalid API URL %q: %w", cfg.APIURL, err)
		}
		api.BaseURL = u
	}

	return &Client{
		api:     api,
		perPage: cfg.PerPage,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "github"),
		metrics: metrics,
		circuitBreaker: breaker.New(breaker.Settings{
			Name:         "github-api",
			IsSuccessful: countsAsSuccess,
		}, logger, metrics),
	}, nil
}

// ListOpenPullRequests returns every open pull request of owner/repo
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, repo string) ([]models.DetectedPullRequest, error) {
	result, err := c.call(ctx, "list_pull_requests", func() (interface{}, error) {
		return c.listOpen(ctx, owner, repo)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.DetectedPullRequest), nil
}

// FetchDiff returns the changed files of a pull request with their patches
func (c *Client) FetchDiff(ctx context.Context, owner, repo string, number int) (*models.PRDiff, error) {
	result, err := c.call(ctx, "fetch_diff", func() (interface{}, error) {
		return c.listFiles(ctx, owner, repo, number)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.PRDiff), nil
}

func (c *Client) call(ctx context.Context, operation string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	result, err := c.circuitBreaker.Execute(fn)

	c.metrics.RecordDuration("github_request_duration_seconds", time.Since(start).Seconds(),
		map[string]string{"operation": operation})

	status := "success"
	if err != nil {
		status = "error"
		if breaker.IsRejection(err) {
			status = "rejected"
			err = pkgerrors.NewUnavailableError(serviceName).WithCause(err)
		}
		c.logger.Debug("GitHub request failed", "operation", operation, "error", err.Error())
	}
	c.metrics.IncrementCounter("github_requests_total", map[string]string{"operation": operation, "status": status})

	return result, err
}

func (c *Client) listOpen(ctx context.Context, owner, repo string) ([]models.DetectedPullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}

	var out []models.DetectedPullRequest
	for {
		prs, resp, err := c.api.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, c.mapError(err, fmt.Sprintf("repository %s/%s", owner, repo))
		}
		for _, pr := range prs {
			out = append(out, toDetected(owner, repo, pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) listFiles(ctx context.Context, owner, repo string, number int) (*models.PRDiff, error) {
	opts := &gh.ListOptions{PerPage: c.perPage}

	diff := &models.PRDiff{Files: []models.DiffFile{}}
	for {
		files, resp, err := c.api.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, c.mapError(err, fmt.Sprintf("pull request %s/%s#%d", owner, repo, number))
		}
		for _, f := range files {
			file := models.DiffFile{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Changes:   f.GetChanges(),
				Patch:     f.GetPatch(),
			}
			diff.Files = append(diff.Files, file)
			diff.TotalAdditions += file.Additions
			diff.TotalDeletions += file.Deletions
			diff.TotalChanges += file.Changes
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return diff, nil
}

func toDetected(owner, repo string, pr *gh.PullRequest) models.DetectedPullRequest {
	state := models.PRStateOpen
	if pr.GetState() == string(models.PRStateClosed) {
		state = models.PRStateClosed
	}
	return models.DetectedPullRequest{
		ID:          pr.GetID(),
		Number:      pr.GetNumber(),
		Title:       pr.GetTitle(),
		Body:        pr.GetBody(),
		State:       state,
		Draft:       pr.GetDraft(),
		Owner:       owner,
		Repo:        repo,
		HTMLURL:     pr.GetHTMLURL(),
		DiffURL:     pr.GetDiffURL(),
		HeadRef:     pr.GetHead().GetRef(),
		BaseRef:     pr.GetBase().GetRef(),
		AuthorLogin: pr.GetUser().GetLogin(),
		CreatedAt:   pr.GetCreatedAt().Time,
		UpdatedAt:   pr.GetUpdatedAt().Time,
	}
}

// mapError converts go-github errors into AppErrors. Permanent failures keep
// "not found", "invalid" or "bad credentials" in their message.
func (c *Client) mapError(err error, subject string) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return pkgerrors.NewRateLimitError(serviceName).
			WithCause(err).
			WithContext("reset", rateErr.Rate.Reset.Time)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return pkgerrors.NewRateLimitError(serviceName).WithCause(err)
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeoutErr) && timeoutErr.Timeout()) {
		return pkgerrors.NewTimeoutError(serviceName, c.timeout.String()).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return pkgerrors.NewExternalError(serviceName, "request canceled").WithCause(err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusUnauthorized:
			return pkgerrors.NewUnauthorizedError("GitHub rejected the token: bad credentials").WithCause(err)
		case code == http.StatusForbidden:
			return pkgerrors.NewForbiddenError(fmt.Sprintf("access to %s is forbidden", subject)).WithCause(err)
		case code == http.StatusNotFound:
			return pkgerrors.NewNotFoundError(fmt.Sprintf("%s not found", subject)).WithCause(err)
		case code == http.StatusUnprocessableEntity:
			return pkgerrors.NewValidationError(fmt.Sprintf("invalid request for %s", subject)).WithCause(err)
		case code == http.StatusTooManyRequests:
			return pkgerrors.NewRateLimitError(serviceName).WithCause(err)
		case code >= 500:
			return pkgerrors.NewUnavailableError(serviceName).WithCause(err).WithCode(fmt.Sprintf("HTTP_%d", code))
		default:
			return pkgerrors.NewExternalError(serviceName, fmt.Sprintf("HTTP %d: %s", code, respErr.Message)).WithCause(err)
		}
	}

	return pkgerrors.NewExternalError(serviceName, "request failed").WithCause(err)
}

// countsAsSuccess keeps client-side errors from tripping the breaker
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	switch pkgerrors.TypeOf(err) {
	case pkgerrors.ErrorTypeNotFound,
		pkgerrors.ErrorTypeUnauthorized,
		pkgerrors.ErrorTypeForbidden,
		pkgerrors.ErrorTypeValidation:
		return true
	}
	return false
}
