package models

import "time"

// PRChange is published on new_pr and updated_pr
type PRChange struct {
	PullRequest       DetectedPullRequest `json:"pull_request"`
	Repository        MonitoredRepository `json:"repository"`
	PreviousUpdatedAt *time.Time          `json:"previous_updated_at,omitempty"`
	DetectedAt        time.Time           `json:"detected_at"`
}

// ErrorKind classifies a failure reported on the error topic
type ErrorKind string

const (
	ErrorKindAuth       ErrorKind = "auth"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindOther      ErrorKind = "other"
)

// ErrorNotice is published on the error topic
type ErrorNotice struct {
	Source     string    `json:"source"`
	Repository string    `json:"repository,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Err        error     `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WebhookEvent is an authenticated inbound webhook delivery
type WebhookEvent struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Payload     []byte    `json:"-"`
	DeliveredAt time.Time `json:"delivered_at"`
	IsRetry     bool      `json:"is_retry"`
	Attempt     int       `json:"attempt"`
}

// PREvent is published on pr_event for every pull-request related delivery
type PREvent struct {
	DeliveryID    string      `json:"delivery_id"`
	EventType     string      `json:"event_type"`
	Action        string      `json:"action"`
	Repository    string      `json:"repository"`
	PullRequest   PullRequest `json:"pull_request"`
	TriggerReview bool        `json:"trigger_review"`
}

// ReviewCompleted is published on review_completed
type ReviewCompleted struct {
	Source     string           `json:"source"`
	Owner      string           `json:"owner"`
	Repo       string           `json:"repo"`
	PullNumber int              `json:"pull_number"`
	Result     *ProcessPRResult `json:"result"`
}
