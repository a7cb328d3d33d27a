// Package webhook authenticates, filters and dispatches GitHub webhook
// deliveries.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/igorsal/pr-sentinel/internal/bus"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
)

// FailureKind classifies a rejected delivery
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureUnauthorized         FailureKind = "unauthorized"
	FailureUnknownEvent         FailureKind = "unknown_event"
	FailureEventNotAllowed      FailureKind = "event_not_allowed"
	FailureInvalidPayload       FailureKind = "invalid_payload"
	FailureRepositoryNotAllowed FailureKind = "repository_not_allowed"
)

// HTTPStatus maps the failure onto the status the webhook endpoint answers
// with. Accepted deliveries are 200 whatever the review outcome.
func (k FailureKind) HTTPStatus() int {
	switch k {
	case FailureUnauthorized:
		return http.StatusUnauthorized
	case FailureUnknownEvent, FailureInvalidPayload:
		return http.StatusBadRequest
	case FailureEventNotAllowed, FailureRepositoryNotAllowed:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

// Config configures the ingress
type Config struct {
	Secret string
	// AllowedEvents defaults to every known event kind when empty
	AllowedEvents []EventType
	// AllowedRepositories holds owner/name entries; empty allows all
	AllowedRepositories []string
	// AutoProcess runs the review synchronously for triggering actions
	AutoProcess bool
}

// IncomingRequest is a raw delivery as received over HTTP
type IncomingRequest struct {
	Payload    []byte
	Signature  string
	DeliveryID string
	EventType  string
	Attempt    int
}

// Result describes how a delivery was handled
type Result struct {
	Success          bool                    `json:"success"`
	EventID          string                  `json:"event_id"`
	EventType        string                  `json:"event_type"`
	Action           string                  `json:"action,omitempty"`
	Repository       string                  `json:"repository,omitempty"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	Message          string                  `json:"message,omitempty"`
	Error            string                  `json:"error,omitempty"`
	Failure          FailureKind             `json:"-"`
	Processing       *models.ProcessPRResult `json:"processing,omitempty"`
}

// Ingress turns authenticated deliveries into bus notifications and reviews
type Ingress struct {
	secret        string
	allowedEvents map[EventType]struct{}
	allowedRepos  map[string]struct{}
	autoProcess   bool
	orchestrator  interfaces.Orchestrator
	bus           *bus.Bus
	logger        interfaces.Logger
	metrics       interfaces.MetricsCollector
}

// NewIngress creates an ingress. orchestrator may be nil when AutoProcess is off.
func NewIngress(cfg Config, orchestrator interfaces.Orchestrator, b *bus.Bus, logger interfaces.Logger, metrics interfaces.MetricsCollector) (*Ingress, error) {
	if cfg.Secret == "" {
		return nil, errors.New("webhook: secret is required")
	}
	if cfg.AutoProcess && orchestrator == nil {
		return nil, errors.New("webhook: auto processing requires an orchestrator")
	}

	allowedEvents := make(map[EventType]struct{})
	events := cfg.AllowedEvents
	if len(events) == 0 {
		events = knownEvents
	}
	for _, e := range events {
		parsed, ok := ParseEventType(string(e))
		if !ok {
			return nil, fmt.Errorf("webhook: unknown event type %q in allow-list", e)
		}
		allowedEvents[parsed] = struct{}{}
	}

	var allowedRepos map[string]struct{}
	if len(cfg.AllowedRepositories) > 0 {
		allowedRepos = make(map[string]struct{}, len(cfg.AllowedRepositories))
		for _, r := range cfg.AllowedRepositories {
			allowedRepos[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
		}
	}

	return &Ingress{
		secret:        cfg.Secret,
		allowedEvents: allowedEvents,
		allowedRepos:  allowedRepos,
		autoProcess:   cfg.AutoProcess,
		orchestrator:  orchestrator,
		bus:           b,
		logger:        logger.With("component", "webhook"),
		metrics:       metrics,
	}, nil
}

// HandleRequest authenticates, filters and dispatches one delivery. It never
// returns nil; a rejected delivery has Success false and a Failure kind.
func (i *Ingress) HandleRequest(ctx context.Context, req IncomingRequest) *Result {
	start := time.Now()
	log := i.logger.With("delivery_id", req.DeliveryID, "event_type", req.EventType)

	result := &Result{
		EventID:   req.DeliveryID,
		EventType: req.EventType,
	}
	done := func(outcome string) *Result {
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		label := req.EventType
		if _, ok := ParseEventType(label); !ok {
			label = "unknown"
		}
		i.metrics.IncrementCounter("webhook_events_total", map[string]string{"event_type": label, "outcome": outcome})
		return result
	}
	reject := func(kind FailureKind, msg string) *Result {
		result.Success = false
		result.Failure = kind
		result.Error = msg
		log.Warn("Webhook delivery rejected", "reason", string(kind), "error", msg)
		return done(string(kind))
	}

	verification := VerifySignature(req.Payload, req.Signature, i.secret)
	if !verification.Valid {
		return reject(FailureUnauthorized, "Invalid signature: "+verification.Error)
	}

	eventType, ok := ParseEventType(req.EventType)
	if !ok {
		return reject(FailureUnknownEvent, fmt.Sprintf("Unknown event type: %s", req.EventType))
	}
	result.EventType = string(eventType)

	if _, ok := i.allowedEvents[eventType]; !ok {
		return reject(FailureEventNotAllowed, fmt.Sprintf("Event type %s not allowed", eventType))
	}

	var envelope models.GitHubEventEnvelope
	if err := json.Unmarshal(req.Payload, &envelope); err != nil {
		log.Debug("Failed to decode webhook payload", "error", err.Error())
		return reject(FailureInvalidPayload, "Invalid payload")
	}
	repo, hasRepo := repositoryKey(envelope.Repository)
	if eventType.IsPullRequestKind() && (envelope.PullRequest == nil || !hasRepo) {
		return reject(FailureInvalidPayload, "Invalid payload")
	}

	result.Action = envelope.Action
	if hasRepo {
		result.Repository = repo.FullName()
	}

	i.bus.Publish(bus.TopicWebhookReceived, models.WebhookEvent{
		Type:        string(eventType),
		ID:          req.DeliveryID,
		Payload:     req.Payload,
		DeliveredAt: start,
		IsRetry:     req.Attempt > 1,
		Attempt:     req.Attempt,
	})

	if hasRepo && !i.repositoryAllowed(result.Repository) {
		return reject(FailureRepositoryNotAllowed, fmt.Sprintf("Repository %s not allowed", result.Repository))
	}

	outcome := "acknowledged"
	switch eventType {
	case EventPing:
		result.Message = "pong"
		log.Info("Webhook ping received", "zen", envelope.Zen, "hook_id", envelope.HookID)
	case EventPullRequest, EventPullRequestReview, EventPullRequestReviewComment:
		outcome = i.dispatchPullRequest(ctx, log, req, eventType, repo, &envelope, result)
	case EventPush, EventIssues, EventIssueComment:
		result.Message = "event acknowledged"
		log.Debug("Webhook event acknowledged without processing", "action", envelope.Action)
	}

	result.Success = true
	return done(outcome)
}

func (i *Ingress) dispatchPullRequest(ctx context.Context, log interfaces.Logger, req IncomingRequest, eventType EventType, repo models.MonitoredRepository, envelope *models.GitHubEventEnvelope, result *Result) string {
	pr := envelope.PullRequest
	trigger := IsReviewTrigger(envelope.Action)

	i.bus.Publish(bus.TopicPREvent, models.PREvent{
		DeliveryID:    req.DeliveryID,
		EventType:     string(eventType),
		Action:        envelope.Action,
		Repository:    repo.FullName(),
		PullRequest:   *pr,
		TriggerReview: trigger,
	})

	if !trigger {
		result.Message = "pull request event recorded"
		return "recorded"
	}
	if !i.autoProcess {
		result.Message = "review not started, auto processing disabled"
		return "recorded"
	}

	log.Info("Starting review from webhook",
		"repository", repo.FullName(),
		"number", pr.Number,
		"action", envelope.Action,
	)

	processing := i.orchestrator.ProcessPR(ctx, models.ProcessPRParams{
		Owner:      repo.Owner,
		Repo:       repo.Name,
		PullNumber: pr.Number,
		Title:      pr.Title,
		Author:     pr.User.Login,
	})
	result.Processing = processing

	i.bus.Publish(bus.TopicReviewCompleted, models.ReviewCompleted{
		Source:     "webhook",
		Owner:      repo.Owner,
		Repo:       repo.Name,
		PullNumber: pr.Number,
		Result:     processing,
	})

	if processing.Success {
		result.Message = "review completed"
		return "processed"
	}
	result.Message = "review failed"
	return "process_failed"
}

func (i *Ingress) repositoryAllowed(fullName string) bool {
	if i.allowedRepos == nil {
		return true
	}
	_, ok := i.allowedRepos[strings.ToLower(fullName)]
	return ok
}

// repositoryKey derives owner/name from full_name, falling back to
// owner.login and name. Every repository decision uses this one key.
func repositoryKey(r *models.Repository) (models.MonitoredRepository, bool) {
	if r == nil {
		return models.MonitoredRepository{}, false
	}
	if parsed, err := models.ParseRepository(r.FullName); err == nil {
		return parsed, true
	}
	if r.Owner.Login != "" && r.Name != "" {
		return models.MonitoredRepository{Owner: r.Owner.Login, Name: r.Name}, true
	}
	return models.MonitoredRepository{}, false
}
