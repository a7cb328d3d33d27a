package webhook

import "strings"

// EventType is a GitHub event kind this service understands
type EventType string

const (
	EventPing                     EventType = "ping"
	EventPush                     EventType = "push"
	EventPullRequest              EventType = "pull_request"
	EventPullRequestReview        EventType = "pull_request_review"
	EventPullRequestReviewComment EventType = "pull_request_review_comment"
	EventIssues                   EventType = "issues"
	EventIssueComment             EventType = "issue_comment"
)

var knownEvents = []EventType{
	EventPing,
	EventPush,
	EventPullRequest,
	EventPullRequestReview,
	EventPullRequestReviewComment,
	EventIssues,
	EventIssueComment,
}

// KnownEventTypes lists every supported event kind
func KnownEventTypes() []EventType {
	out := make([]EventType, len(knownEvents))
	copy(out, knownEvents)
	return out
}

// ParseEventType maps a X-GitHub-Event header value onto the known set
func ParseEventType(s string) (EventType, bool) {
	candidate := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, e := range knownEvents {
		if e == candidate {
			return e, true
		}
	}
	return "", false
}

// IsPullRequestKind reports whether the event carries a pull request
func (e EventType) IsPullRequestKind() bool {
	switch e {
	case EventPullRequest, EventPullRequestReview, EventPullRequestReviewComment:
		return true
	}
	return false
}

// Actions of pull request events that trigger a review
var reviewTriggers = map[string]struct{}{
	"opened":           {},
	"edited":           {},
	"synchronize":      {},
	"reopened":         {},
	"ready_for_review": {},
}

// IsReviewTrigger reports whether a pull request action triggers a review
func IsReviewTrigger(action string) bool {
	_, ok := reviewTriggers[action]
	return ok
}
