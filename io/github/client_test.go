package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorsal/pr-sentinel/internal/config"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
	"github.com/igorsal/pr-sentinel/pkg/logger"
	"github.com/igorsal/pr-sentinel/pkg/metrics"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.GitHubConfig{Token: "test-token", APIURL: server.URL}, logger.NewNop(), metrics.Noop{})
	require.NoError(t, err)
	return client
}

func TestListOpenPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "open", r.URL.Query().Get("state"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":3,"number":12,"title":"Docs","state":"open","draft":true,"user":{"login":"bob"},"head":{"ref":"docs"},"base":{"ref":"main"},"updated_at":"2024-05-02T09:00:00Z"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/api/pulls?state=open&page=2>; rel="next"`, r.Host))
		fmt.Fprint(w, `[{"id":1,"number":10,"title":"Add cache","body":"details","state":"open","html_url":"https://github.com/acme/api/pull/10","diff_url":"https://github.com/acme/api/pull/10.diff","user":{"login":"alice"},"head":{"ref":"cache"},"base":{"ref":"main"},"created_at":"2024-05-01T08:00:00Z","updated_at":"2024-05-01T10:00:00Z"}]`)
	})
	client := newTestClient(t, mux)

	prs, err := client.ListOpenPullRequests(context.Background(), "acme", "api")

	require.NoError(t, err)
	require.Len(t, prs, 2)

	first := prs[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, 10, first.Number)
	assert.Equal(t, "Add cache", first.Title)
	assert.Equal(t, "acme", first.Owner)
	assert.Equal(t, "api", first.Repo)
	assert.Equal(t, "alice", first.AuthorLogin)
	assert.Equal(t, "cache", first.HeadRef)
	assert.Equal(t, "main", first.BaseRef)
	assert.Equal(t, "https://github.com/acme/api/pull/10.diff", first.DiffURL)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), first.UpdatedAt.UTC())

	assert.Equal(t, 12, prs[1].Number)
	assert.True(t, prs[1].Draft)
}

func TestFetchDiff(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api/pulls/42/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"filename":"main.go","status":"modified","additions":3,"deletions":1,"changes":4,"patch":"@@ -1 +1 @@\n-a\n+b"},
			{"filename":"logo.png","status":"added","additions":0,"deletions":0,"changes":0}
		]`)
	})
	client := newTestClient(t, mux)

	diff, err := client.FetchDiff(context.Background(), "acme", "api", 42)

	require.NoError(t, err)
	require.Len(t, diff.Files, 2)
	assert.Equal(t, "main.go", diff.Files[0].Filename)
	assert.True(t, diff.Files[0].HasPatch())
	assert.False(t, diff.Files[1].HasPatch())
	assert.Equal(t, 3, diff.TotalAdditions)
	assert.Equal(t, 1, diff.TotalDeletions)
	assert.Equal(t, 4, diff.TotalChanges)
	assert.Len(t, diff.ReviewableFiles(), 1)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		errType  pkgerrors.ErrorType
		contains string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, errType: pkgerrors.ErrorTypeUnauthorized, contains: "bad credentials"},
		{name: "forbidden", status: http.StatusForbidden, errType: pkgerrors.ErrorTypeForbidden, contains: "forbidden"},
		{name: "not found", status: http.StatusNotFound, errType: pkgerrors.ErrorTypeNotFound, contains: "not found"},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, errType: pkgerrors.ErrorTypeValidation, contains: "invalid"},
		{name: "server error", status: http.StatusBadGateway, errType: pkgerrors.ErrorTypeUnavailable},
		{
			name:   "rate limited",
			status: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Limit":     "60",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			},
			errType: pkgerrors.ErrorTypeRateLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"upstream said no"}`)
			}))

			_, err := client.FetchDiff(context.Background(), "acme", "api", 42)

			require.Error(t, err)
			assert.Equal(t, tt.errType, pkgerrors.TypeOf(err))
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))

	for i := 0; i < 6; i++ {
		_, err := client.ListOpenPullRequests(context.Background(), "acme", "missing")
		assert.Equal(t, pkgerrors.ErrorTypeNotFound, pkgerrors.TypeOf(err))
	}
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
	assert.Equal(t, "closed", client.circuitBreaker.State())
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	}))

	for i := 0; i < 3; i++ {
		_, err := client.FetchDiff(context.Background(), "acme", "api", 1)
		require.Error(t, err)
	}

	_, err := client.FetchDiff(context.Background(), "acme", "api", 1)

	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrorTypeUnavailable, pkgerrors.TypeOf(err))
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(config.GitHubConfig{APIURL: "://bad"}, logger.NewNop(), metrics.Noop{})
	assert.Error(t, err)
}
