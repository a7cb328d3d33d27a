// Package claude implements interfaces.Analyzer on the Anthropic messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/igorsal/pr-sentinel/internal/config"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	"github.com/igorsal/pr-sentinel/pkg/breaker"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

const (
	serviceName    = "claude"
	reviewToolName = "submit_code_review"
	apiVersion     = "2023-06-01"
)

type Client struct {
	httpClient     *resty.Client
	config         config.ClaudeConfig
	logger         interfaces.Logger
	circuitBreaker interfaces.CircuitBreaker
	metrics        interfaces.MetricsCollector
}

// NewClient creates a Claude API client with circuit breaker and metrics
func NewClient(cfg config.ClaudeConfig, logger interfaces.Logger, metrics interfaces.MetricsCollector) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", apiVersion).
		SetBaseURL(cfg.BaseURL)

	return &Client{
		httpClient: client,
		config:     cfg,
		logger:     logger.With("component", "claude"),
		circuitBreaker: breaker.New(breaker.Settings{
			Name: "claude-api",
			IsSuccessful: func(err error) bool {
				return err == nil || pkgerrors.TypeOf(err) == pkgerrors.ErrorTypeUnauthorized
			},
		}, logger, metrics),
		metrics: metrics,
	}
}

// Submit asks the model to review diffText and returns its structured verdict
func (c *Client) Submit(ctx context.Context, diffText string, reviewCtx models.ReviewContext) (*models.AnalysisResult, error) {
	startTime := time.Now()
	target := fmt.Sprintf("%s/%s#%d", reviewCtx.Owner, reviewCtx.Repo, reviewCtx.PullNumber)

	c.logger.Info("Submitting diff for review",
		"target", target,
		"files", len(reviewCtx.Files),
		"diff_bytes", len(diffText),
		"circuit_breaker_state", c.circuitBreaker.State(),
	)

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.executeReview(ctx, diffText, reviewCtx)
	})

	duration := time.Since(startTime).Seconds()
	c.metrics.RecordDuration("claude_request_duration_seconds", duration, map[string]string{"operation": "review"})

	if err != nil {
		status := "error"
		if breaker.IsRejection(err) {
			status = "rejected"
			err = pkgerrors.NewUnavailableError(serviceName).WithCause(err)
		}
		c.metrics.IncrementCounter("claude_requests_total", map[string]string{"operation": "review", "status": status})
		c.logger.Error("Review request failed", err, "target", target)
		return nil, err
	}

	c.metrics.IncrementCounter("claude_requests_total", map[string]string{"operation": "review", "status": "success"})

	analysis := result.(*models.AnalysisResult)
	c.logger.Info("Review received",
		"target", target,
		"approval", string(analysis.Approval),
		"score", analysis.Score,
		"comments", len(analysis.Comments),
		"duration_ms", duration*1000,
	)
	return analysis, nil
}

func (c *Client) executeReview(ctx context.Context, diffText string, reviewCtx models.ReviewContext) (*models.AnalysisResult, error) {
	req := MessagesRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		Messages: []Message{
			{Role: "user", Content: buildReviewPrompt(diffText, reviewCtx)},
		},
		System:     systemPrompt,
		Tools:      []Tool{reviewTool()},
		ToolChoice: &ToolChoice{Type: "tool", Name: reviewToolName},
	}

	var body MessagesResponse
	var apiErr APIError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		SetError(&apiErr).
		Post("/v1/messages")
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.NewTimeoutError(serviceName, c.config.Timeout.String()).WithCause(err)
		}
		return nil, pkgerrors.NewExternalError(serviceName, err.Error()).WithCause(err)
	}

	if resp.IsError() {
		message := apiErr.Error.Message
		if message == "" {
			message = string(resp.Body())
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusUnauthorized:
			return nil, pkgerrors.NewUnauthorizedError("Invalid Claude API key")
		case code == http.StatusTooManyRequests:
			return nil, pkgerrors.NewRateLimitError(serviceName)
		case code >= 500:
			return nil, pkgerrors.NewUnavailableError(serviceName).WithContext("status_code", code)
		default:
			return nil, pkgerrors.NewExternalError(serviceName, fmt.Sprintf("HTTP %d: %s", code, message))
		}
	}

	for _, content := range body.Content {
		if content.Type == "tool_use" && content.Name == reviewToolName {
			return decodeReview(content.Input)
		}
	}
	return nil, pkgerrors.NewExternalError(serviceName, "no review tool call in response").
		WithContext("stop_reason", body.StopReason)
}

// decodeReview parses and checks the tool input
func decodeReview(input json.RawMessage) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := json.Unmarshal(input, &result); err != nil {
		return nil, pkgerrors.NewExternalError(serviceName, "malformed review payload").WithCause(err)
	}

	result.Approval = models.Approval(strings.ToLower(string(result.Approval)))
	if !result.Approval.Valid() {
		return nil, pkgerrors.NewExternalError(serviceName, fmt.Sprintf("unexpected approval %q", result.Approval))
	}
	if result.Score < models.MinScore || result.Score > models.MaxScore {
		return nil, pkgerrors.NewExternalError(serviceName, fmt.Sprintf("score %d outside %d-%d", result.Score, models.MinScore, models.MaxScore))
	}
	if result.Comments == nil {
		result.Comments = []models.AnalysisComment{}
	}
	return &result, nil
}

func buildReviewPrompt(diffText string, rc models.ReviewContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the following changes from pull request #%d in %s/%s.\n\n", rc.PullNumber, rc.Owner, rc.Repo)
	if rc.Title != "" {
		fmt.Fprintf(&b, "**Title:** %s\n", rc.Title)
	}
	if rc.FilePath != "" {
		fmt.Fprintf(&b, "**File:** %s\n", rc.FilePath)
	} else if len(rc.Files) > 0 {
		fmt.Fprintf(&b, "**Files:** %s\n", strings.Join(rc.Files, ", "))
		b.WriteString("Each file's patch is preceded by a line of the form \"=== File: <path> ===\". Set the file field of every comment.\n")
	}
	b.WriteString("\n```diff\n")
	b.WriteString(diffText)
	b.WriteString("\n```\n")
	return b.String()
}

func reviewTool() Tool {
	minScore, maxScore := models.MinScore, models.MaxScore
	return Tool{
		Name:        reviewToolName,
		Description: "Submit a structured code review of a pull request diff",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"summary": {Type: "string", Description: "Overall assessment of the change in a few sentences"},
				"comments": {
					Type:        "array",
					Description: "Specific findings, each tied to a line of the diff",
					Items: &Property{
						Type: "object",
						Properties: map[string]Property{
							"file":       {Type: "string", Description: "Path of the file the finding refers to"},
							"line":       {Type: "integer", Description: "Line number in the new version of the file"},
							"severity":   {Type: "string", Enum: []string{"critical", "error", "warning", "info", "suggestion"}},
							"category":   {Type: "string", Description: "e.g. bug, security, performance, style, maintainability"},
							"text":       {Type: "string", Description: "Explanation of the finding"},
							"suggestion": {Type: "string", Description: "Replacement code, when a concrete fix exists"},
						},
						Required: []string{"line", "severity", "category", "text"},
					},
				},
				"approval": {Type: "string", Enum: []string{"approve", "request_changes", "comment"}},
				"score":    {Type: "integer", Description: "Overall quality from 1 (poor) to 10 (excellent)", Minimum: &minScore, Maximum: &maxScore},
			},
			Required: []string{"summary", "comments", "approval", "score"},
		},
	}
}

const systemPrompt = `You are a senior engineer reviewing pull requests. Focus on correctness, security, performance and maintainability.

Guidelines:
- Comment only on changed lines and only when the finding is actionable
- Prefer few precise comments over many vague ones
- Use "critical" for security holes and data loss, "error" for bugs, "warning" for risky code, "info" and "suggestion" for the rest
- Request changes only when at least one critical or error finding exists

Always answer by calling the submit_code_review tool.`
