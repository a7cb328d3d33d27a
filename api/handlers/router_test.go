package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/igorsal/pr-sentinel/internal/mocks"
	"github.com/igorsal/pr-sentinel/internal/models"
	"github.com/igorsal/pr-sentinel/internal/webhook"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
	"github.com/igorsal/pr-sentinel/pkg/logger"
	"github.com/igorsal/pr-sentinel/pkg/metrics"
)

const adminToken = "s3cret"

type ingressFunc func(ctx context.Context, req webhook.IncomingRequest) *webhook.Result

func (f ingressFunc) HandleRequest(ctx context.Context, req webhook.IncomingRequest) *webhook.Result {
	return f(ctx, req)
}

type fakeMonitor struct {
	mu    sync.Mutex
	repos []models.MonitoredRepository
	polls int
}

func (f *fakeMonitor) AddRepository(repo models.MonitoredRepository) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r == repo {
			return false
		}
	}
	f.repos = append(f.repos, repo)
	return true
}

func (f *fakeMonitor) RemoveRepository(repo models.MonitoredRepository) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.repos {
		if r == repo {
			f.repos = append(f.repos[:i], f.repos[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeMonitor) Repositories() []models.MonitoredRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MonitoredRepository(nil), f.repos...)
}

func (f *fakeMonitor) TrackedCount() int { return 3 }
func (f *fakeMonitor) IsRunning() bool   { return true }

type testServer struct {
	router   http.Handler
	orch     *mocks.Orchestrator
	store    *mocks.ReviewStore
	monitor  *fakeMonitor
	lastHook webhook.IncomingRequest
	hookResp *webhook.Result
	dbErr    error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.NewNop()
	ts := &testServer{
		orch:     &mocks.Orchestrator{},
		store:    &mocks.ReviewStore{},
		monitor:  &fakeMonitor{},
		hookResp: &webhook.Result{Success: true, Message: "Event acknowledged"},
	}

	ingress := ingressFunc(func(_ context.Context, req webhook.IncomingRequest) *webhook.Result {
		ts.lastHook = req
		return ts.hookResp
	})
	checks := map[string]HealthCheck{
		"database": func(context.Context) error { return ts.dbErr },
	}

	ts.router = NewRouter(RouterConfig{
		Health:  NewHealthHandler(checks, log),
		Webhook: NewWebhookHandler(ingress, 1024, log),
		Reviews: NewReviewsHandler(ts.orch, ts.store, log),
		Repositories: NewRepositoriesHandler(ts.monitor, func(*http.Request) {
			ts.monitor.mu.Lock()
			ts.monitor.polls++
			ts.monitor.mu.Unlock()
		}, log),
		AdminToken: adminToken,
		Logger:     log,
		Collector:  metrics.Noop{},
	})
	return ts
}

func (ts *testServer) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.NotEmpty(t, resp.Version)

	ts.dbErr = errors.New("connection refused")
	rec = ts.do(http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Checks["database"], "connection refused")
}

func TestWebhookPassesHeadersThrough(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(`{"zen":"hi"}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=abc")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-GitHub-Event", "ping")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"zen":"hi"}`, string(ts.lastHook.Payload))
	assert.Equal(t, "sha256=abc", ts.lastHook.Signature)
	assert.Equal(t, "delivery-1", ts.lastHook.DeliveryID)
	assert.Equal(t, "ping", ts.lastHook.EventType)
	assert.Equal(t, 1, ts.lastHook.Attempt)
}

func TestWebhookStatusFollowsFailureKind(t *testing.T) {
	tests := []struct {
		failure webhook.FailureKind
		want    int
	}{
		{webhook.FailureUnauthorized, http.StatusUnauthorized},
		{webhook.FailureUnknownEvent, http.StatusBadRequest},
		{webhook.FailureInvalidPayload, http.StatusBadRequest},
		{webhook.FailureEventNotAllowed, http.StatusForbidden},
		{webhook.FailureRepositoryNotAllowed, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.failure), func(t *testing.T) {
			ts := newTestServer(t)
			ts.hookResp = &webhook.Result{Success: false, Failure: tt.failure, Error: "rejected"}

			rec := ts.do(http.MethodPost, "/webhooks/github", "{}", false)
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]interface{}
			decode(t, rec, &body)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "rejected", body["error"])
		})
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/webhooks/github", strings.Repeat("x", 2048), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/repositories", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/repositories", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateReview(t *testing.T) {
	tests := []struct {
		name   string
		result *models.ProcessPRResult
		want   int
	}{
		{"success", &models.ProcessPRResult{Success: true, ReviewID: "r-1"}, http.StatusOK},
		{"invalid params", &models.ProcessPRResult{ErrorCode: models.ErrCodeInvalidParams}, http.StatusBadRequest},
		{"diff fetch", &models.ProcessPRResult{ErrorCode: models.ErrCodeDiffFetchFailed}, http.StatusBadGateway},
		{"ai review", &models.ProcessPRResult{ErrorCode: models.ErrCodeAIReviewFailed}, http.StatusBadGateway},
		{"db save", &models.ProcessPRResult{ErrorCode: models.ErrCodeDBSaveFailed}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orch.On("ProcessPR", mock.Anything, models.ProcessPRParams{
				Owner: "acme", Repo: "api", PullNumber: 42, Title: "Add cache",
			}).Return(tt.result).Once()

			rec := ts.do(http.MethodPost, "/reviews",
				`{"owner":"acme","repo":"api","pull_number":42,"title":"Add cache"}`, true)

			assert.Equal(t, tt.want, rec.Code)
			ts.orch.AssertExpectations(t)
		})
	}
}

func TestCreateReviewValidatesBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/reviews", `{"owner":"acme","pull_number":0}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/reviews", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.orch.AssertNotCalled(t, "ProcessPR", mock.Anything, mock.Anything)
}

func TestGetReview(t *testing.T) {
	ts := newTestServer(t)
	ts.store.On("GetReview", mock.Anything, "r-1").
		Return(&models.Review{ID: "r-1", Title: "Review: Add cache", Score: 8}, nil)
	ts.store.On("GetReview", mock.Anything, "missing").
		Return(nil, pkgerrors.NewNotFoundError("review missing not found"))

	rec := ts.do(http.MethodGet, "/reviews/r-1", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var review models.Review
	decode(t, rec, &review)
	assert.Equal(t, 8, review.Score)

	rec = ts.do(http.MethodGet, "/reviews/missing", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReviews(t *testing.T) {
	ts := newTestServer(t)
	ts.store.On("ListReviews", mock.Anything, "acme", "api", 42).
		Return([]models.Review{{ID: "r-2"}, {ID: "r-1"}}, nil)

	rec := ts.do(http.MethodGet, "/reviews?owner=acme&repo=api&pull_number=42", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Reviews []models.Review `json:"reviews"`
		Count   int             `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "r-2", body.Reviews[0].ID)

	rec = ts.do(http.MethodGet, "/reviews?owner=acme", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewReadsWithoutStore(t *testing.T) {
	log := logger.NewNop()
	h := NewReviewsHandler(&mocks.Orchestrator{}, nil, log)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/reviews?owner=a&repo=b&pull_number=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRepositoryLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/repositories/poll", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/repositories", `{"owner":"acme","name":"api"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodPost, "/repositories", `{"owner":"acme","name":"api"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/repositories", `{"owner":"acme"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/repositories/poll", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.monitor.polls)

	var state RepositoriesResponse
	decode(t, rec, &state)
	assert.Equal(t, []models.MonitoredRepository{{Owner: "acme", Name: "api"}}, state.Repositories)
	assert.Equal(t, 3, state.Tracked)
	assert.True(t, state.Polling)

	rec = ts.do(http.MethodDelete, "/repositories/acme/api", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/repositories/acme/api", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRouteIsOptional(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

}
