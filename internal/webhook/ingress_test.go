package webhook

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/igorsal/pr-sentinel/internal/bus"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/mocks"
	"github.com/igorsal/pr-sentinel/internal/models"
	"github.com/igorsal/pr-sentinel/pkg/logger"
	"github.com/igorsal/pr-sentinel/pkg/metrics"
)

const secret = "webhook-secret"

const pingPayload = `{"zen":"Design for failure.","hook_id":7,"repository":{"id":1,"name":"api","full_name":"acme/api","owner":{"login":"acme"}}}`

const syncPayload = `{
  "action": "synchronize",
  "number": 42,
  "pull_request": {
    "id": 9001,
    "number": 42,
    "title": "Add rate limiting",
    "state": "open",
    "user": {"login": "octocat"},
    "head": {"ref": "feature"},
    "base": {"ref": "main"}
  },
  "repository": {"id": 1, "name": "api", "full_name": "acme/api", "owner": {"login": "acme"}},
  "sender": {"login": "octocat"}
}`

func prPayloadWithRepository(repository string) string {
	return `{"action":"opened","number":7,"pull_request":{"id":1,"number":7,"title":"Leak","user":{"login":"mallory"}},"repository":` +
		repository + `}`
}

type collector struct {
	mu     sync.Mutex
	events map[bus.Topic][]bus.Event
}

func collect(b *bus.Bus, topics ...bus.Topic) *collector {
	c := &collector{events: make(map[bus.Topic][]bus.Event)}
	for _, topic := range topics {
		b.Subscribe(topic, func(e bus.Event) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events[e.Topic] = append(c.events[e.Topic], e)
		})
	}
	return c
}

func (c *collector) count(topic bus.Topic) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events[topic])
}

func (c *collector) first(topic bus.Topic) bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[topic][0]
}

func newIngress(t *testing.T, cfg Config, orch interfaces.Orchestrator) (*Ingress, *collector) {
	t.Helper()
	b := bus.New(logger.NewNop(), metrics.Noop{})
	c := collect(b, bus.TopicWebhookReceived, bus.TopicPREvent, bus.TopicReviewCompleted)
	if cfg.Secret == "" {
		cfg.Secret = secret
	}
	ingress, err := NewIngress(cfg, orch, b, logger.NewNop(), metrics.Noop{})
	require.NoError(t, err)
	return ingress, c
}

func signed(event, payload string) IncomingRequest {
	return IncomingRequest{
		Payload:    []byte(payload),
		Signature:  Sign([]byte(payload), secret),
		DeliveryID: "delivery-1",
		EventType:  event,
		Attempt:    1,
	}
}

func TestNewIngress_Validation(t *testing.T) {
	b := bus.New(logger.NewNop(), metrics.Noop{})

	_, err := NewIngress(Config{}, nil, b, logger.NewNop(), metrics.Noop{})
	assert.Error(t, err)

	_, err = NewIngress(Config{Secret: secret, AllowedEvents: []EventType{"deployment"}}, nil, b, logger.NewNop(), metrics.Noop{})
	assert.Error(t, err)

	_, err = NewIngress(Config{Secret: secret, AutoProcess: true}, nil, b, logger.NewNop(), metrics.Noop{})
	assert.Error(t, err)
}

func TestHandleRequest_Ping(t *testing.T) {
	orch := &mocks.Orchestrator{}
	ingress, c := newIngress(t, Config{AutoProcess: true}, orch)

	result := ingress.HandleRequest(context.Background(), signed("ping", pingPayload))

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "ping", result.EventType)
	assert.Equal(t, "delivery-1", result.EventID)
	assert.Equal(t, "acme/api", result.Repository)
	assert.Nil(t, result.Processing)
	assert.Equal(t, http.StatusOK, result.Failure.HTTPStatus())
	assert.Equal(t, 1, c.count(bus.TopicWebhookReceived))
	assert.Equal(t, 0, c.count(bus.TopicPREvent))
	orch.AssertNotCalled(t, "ProcessPR", mock.Anything, mock.Anything)
}

func TestHandleRequest_SynchronizeTriggersReview(t *testing.T) {
	orch := &mocks.Orchestrator{}
	orch.On("ProcessPR", mock.Anything, mock.MatchedBy(func(p models.ProcessPRParams) bool {
		return p.Owner == "acme" && p.Repo == "api" && p.PullNumber == 42 && p.Author == "octocat"
	})).Return(&models.ProcessPRResult{Success: true, ReviewID: "review-1"}).Once()

	ingress, c := newIngress(t, Config{AutoProcess: true}, orch)

	result := ingress.HandleRequest(context.Background(), signed("pull_request", syncPayload))

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "pull_request", result.EventType)
	assert.Equal(t, "synchronize", result.Action)
	assert.Equal(t, "acme/api", result.Repository)
	require.NotNil(t, result.Processing)
	assert.Equal(t, "review-1", result.Processing.ReviewID)

	assert.Equal(t, 1, c.count(bus.TopicWebhookReceived))
	assert.Equal(t, 1, c.count(bus.TopicPREvent))
	assert.Equal(t, 1, c.count(bus.TopicReviewCompleted))

	prEvent := c.first(bus.TopicPREvent).Payload.(models.PREvent)
	assert.True(t, prEvent.TriggerReview)
	assert.Equal(t, 42, prEvent.PullRequest.Number)

	received := c.first(bus.TopicWebhookReceived).Payload.(models.WebhookEvent)
	assert.Equal(t, "delivery-1", received.ID)
	assert.False(t, received.IsRetry)
	orch.AssertExpectations(t)
}

func TestHandleRequest_FailedReviewStillSucceeds(t *testing.T) {
	orch := &mocks.Orchestrator{}
	orch.On("ProcessPR", mock.Anything, mock.Anything).
		Return(&models.ProcessPRResult{Success: false, ErrorCode: models.ErrCodeDiffFetchFailed}).Once()

	ingress, _ := newIngress(t, Config{AutoProcess: true}, orch)

	result := ingress.HandleRequest(context.Background(), signed("pull_request", syncPayload))

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Failure.HTTPStatus())
	assert.Equal(t, models.ErrCodeDiffFetchFailed, result.Processing.ErrorCode)
}

func TestHandleRequest_AutoProcessDisabled(t *testing.T) {
	ingress, c := newIngress(t, Config{}, nil)

	result := ingress.HandleRequest(context.Background(), signed("pull_request", syncPayload))

	assert.True(t, result.Success)
	assert.Nil(t, result.Processing)
	assert.Equal(t, 1, c.count(bus.TopicPREvent))
	assert.Equal(t, 0, c.count(bus.TopicReviewCompleted))
}

func TestHandleRequest_NonTriggeringAction(t *testing.T) {
	orch := &mocks.Orchestrator{}
	ingress, c := newIngress(t, Config{AutoProcess: true}, orch)

	payload := `{"action":"labeled","pull_request":{"number":42},"repository":{"name":"api","full_name":"acme/api","owner":{"login":"acme"}}}`
	result := ingress.HandleRequest(context.Background(), signed("pull_request", payload))

	assert.True(t, result.Success)
	assert.Equal(t, "labeled", result.Action)
	assert.Nil(t, result.Processing)
	assert.Equal(t, 1, c.count(bus.TopicPREvent))
	assert.False(t, c.first(bus.TopicPREvent).Payload.(models.PREvent).TriggerReview)
	orch.AssertNotCalled(t, "ProcessPR", mock.Anything, mock.Anything)
}

func TestHandleRequest_OtherKnownEventsAreAcknowledged(t *testing.T) {
	ingress, c := newIngress(t, Config{}, nil)

	result := ingress.HandleRequest(context.Background(), signed("push", `{"ref":"refs/heads/main","repository":{"full_name":"acme/api"}}`))

	assert.True(t, result.Success)
	assert.Equal(t, 1, c.count(bus.TopicWebhookReceived))
	assert.Equal(t, 0, c.count(bus.TopicPREvent))
}

func TestHandleRequest_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		req         IncomingRequest
		failure     FailureKind
		status      int
		errContains string
		received    int
	}{
		{
			name:        "bad signature",
			req:         IncomingRequest{Payload: []byte(pingPayload), Signature: Sign([]byte(pingPayload), "wrong"), EventType: "ping"},
			failure:     FailureUnauthorized,
			status:      http.StatusUnauthorized,
			errContains: "verification failed",
		},
		{
			name:        "missing signature",
			req:         IncomingRequest{Payload: []byte(pingPayload), EventType: "ping"},
			failure:     FailureUnauthorized,
			status:      http.StatusUnauthorized,
			errContains: "missing header",
		},
		{
			name:        "unknown event",
			req:         signed("deployment", pingPayload),
			failure:     FailureUnknownEvent,
			status:      http.StatusBadRequest,
			errContains: "Unknown event type: deployment",
		},
		{
			name:        "event not allowed",
			cfg:         Config{AllowedEvents: []EventType{EventPullRequest}},
			req:         signed("issues", pingPayload),
			failure:     FailureEventNotAllowed,
			status:      http.StatusForbidden,
			errContains: "Event type issues not allowed",
		},
		{
			name:        "invalid json",
			req:         signed("ping", `{"zen":`),
			failure:     FailureInvalidPayload,
			status:      http.StatusBadRequest,
			errContains: "Invalid payload",
		},
		{
			name:        "pull request event without pull request",
			req:         signed("pull_request", `{"action":"opened"}`),
			failure:     FailureInvalidPayload,
			status:      http.StatusBadRequest,
			errContains: "Invalid payload",
		},
		{
			name:        "pull request event without repository coordinates",
			req:         signed("pull_request", prPayloadWithRepository(`{"id":1}`)),
			failure:     FailureInvalidPayload,
			status:      http.StatusBadRequest,
			errContains: "Invalid payload",
		},
		{
			name:        "repository without full name not allowed",
			cfg:         Config{AllowedRepositories: []string{"acme/api"}},
			req:         signed("pull_request", prPayloadWithRepository(`{"name":"secret","owner":{"login":"other"}}`)),
			failure:     FailureRepositoryNotAllowed,
			status:      http.StatusForbidden,
			errContains: "Repository other/secret not allowed",
			received:    1,
		},
		{
			name:        "repository not allowed",
			cfg:         Config{AllowedRepositories: []string{"acme/web"}},
			req:         signed("pull_request", syncPayload),
			failure:     FailureRepositoryNotAllowed,
			status:      http.StatusForbidden,
			errContains: "Repository acme/api not allowed",
			received:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingress, c := newIngress(t, tt.cfg, nil)

			result := ingress.HandleRequest(context.Background(), tt.req)

			assert.False(t, result.Success)
			assert.Equal(t, tt.failure, result.Failure)
			assert.Equal(t, tt.status, result.Failure.HTTPStatus())
			assert.Contains(t, result.Error, tt.errContains)
			assert.Equal(t, tt.received, c.count(bus.TopicWebhookReceived))
			assert.Equal(t, 0, c.count(bus.TopicPREvent))
		})
	}
}

func TestHandleRequest_RepositoryAllowListIsCaseInsensitive(t *testing.T) {
	ingress, _ := newIngress(t, Config{AllowedRepositories: []string{"ACME/Api"}}, nil)

	result := ingress.HandleRequest(context.Background(), signed("pull_request", syncPayload))

	assert.True(t, result.Success, result.Error)
}

func TestHandleRequest_RetryDelivery(t *testing.T) {
	ingress, c := newIngress(t, Config{}, nil)

	req := signed("ping", pingPayload)
	req.Attempt = 3
	ingress.HandleRequest(context.Background(), req)

	received := c.first(bus.TopicWebhookReceived).Payload.(models.WebhookEvent)
	assert.True(t, received.IsRetry)
	assert.Equal(t, 3, received.Attempt)
}

func TestHandleRequest_RepositoryFallsBackToOwnerAndName(t *testing.T) {
	orch := &mocks.Orchestrator{}
	orch.On("ProcessPR", mock.Anything, mock.MatchedBy(func(p models.ProcessPRParams) bool {
		return p.Owner == "acme" && p.Repo == "api" && p.PullNumber == 7
	})).Return(&models.ProcessPRResult{Success: true}).Once()

	ingress, c := newIngress(t, Config{AutoProcess: true, AllowedRepositories: []string{"acme/api"}}, orch)

	result := ingress.HandleRequest(context.Background(),
		signed("pull_request", prPayloadWithRepository(`{"name":"api","owner":{"login":"acme"}}`)))

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "acme/api", result.Repository)
	assert.Equal(t, "acme/api", c.first(bus.TopicPREvent).Payload.(models.PREvent).Repository)
	orch.AssertExpectations(t)
}
