package services

import (
	"context"
	"strings"
	"time"

	"github.com/igorsal/pr-sentinel/internal/models"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

// Error text that marks a diff fetch failure as permanent: the resource is
// absent, the request is invalid or the credentials have expired.
var nonRetryableMarkers = []string{
	"not found",
	"invalid",
	"expired",
	"bad credentials",
}

// isRetryable classifies a fetch error. Typed adapter errors decide by type;
// otherwise only the error's own message is matched against the markers, so
// wrapped causes carrying request URLs or repository names never count.
func isRetryable(err error) bool {
	if appErr, ok := pkgerrors.AsAppError(err); ok {
		switch appErr.Type {
		case pkgerrors.ErrorTypeNotFound,
			pkgerrors.ErrorTypeValidation,
			pkgerrors.ErrorTypeUnauthorized:
			return false
		case pkgerrors.ErrorTypeRateLimit,
			pkgerrors.ErrorTypeTimeout,
			pkgerrors.ErrorTypeUnavailable,
			pkgerrors.ErrorTypeForbidden:
			return true
		}
		return !hasPermanentMarker(appErr.Message)
	}
	return !hasPermanentMarker(err.Error())
}

func hasPermanentMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// fetchDiffWithRetry makes up to MaxRetries attempts, waiting
// RetryDelay*attempt between them, and gives up at once on permanent errors.
func (o *Orchestrator) fetchDiffWithRetry(ctx context.Context, owner, repo string, number int) (*models.PRDiff, error) {
	var lastErr error
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		diff, err := o.source.FetchDiff(ctx, owner, repo, number)
		if err == nil {
			return diff, nil
		}
		lastErr = err

		if !isRetryable(err) {
			o.logger.Warn("Diff fetch failed with a permanent error, not retrying",
				"owner", owner, "repo", repo, "number", number,
				"attempt", attempt, "error", err.Error(),
			)
			return nil, err
		}
		if attempt == o.config.MaxRetries {
			break
		}

		delay := o.config.RetryDelay * time.Duration(attempt)
		o.logger.Warn("Diff fetch failed, retrying",
			"owner", owner, "repo", repo, "number", number,
			"attempt", attempt, "max_attempts", o.config.MaxRetries,
			"delay", delay.String(), "error", err.Error(),
		)
		o.metrics.IncrementCounter("diff_fetch_retries_total", nil)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
