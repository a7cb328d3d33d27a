package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/igorsal/pr-sentinel/api/middleware"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/webhook"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

const (
	headerSignature = "X-Hub-Signature-256"
	headerDelivery  = "X-GitHub-Delivery"
	headerEvent     = "X-GitHub-Event"
	// GitHub does not send an attempt header; redeliveries from the UI or a
	// proxy may set this one.
	headerAttempt = "X-GitHub-Delivery-Attempt"
)

// WebhookIngress handles authenticated webhook deliveries
type WebhookIngress interface {
	HandleRequest(ctx context.Context, req webhook.IncomingRequest) *webhook.Result
}

type WebhookHandler struct {
	ingress      WebhookIngress
	maxBodyBytes int64
	logger       interfaces.Logger
}

// NewWebhookHandler creates the GitHub webhook endpoint handler
func NewWebhookHandler(ingress WebhookIngress, maxBodyBytes int64, logger interfaces.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingress:      ingress,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Handle reads the raw body and headers and answers with the ingress result.
// The status code reflects whether the delivery was accepted, not whether the
// review succeeded.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, h.logger,
				pkgerrors.NewValidationError("payload too large").WithCode("PAYLOAD_TOO_LARGE"))
			return
		}
		middleware.WriteError(w, r, h.logger, pkgerrors.NewValidationError("failed to read body").WithCause(err))
		return
	}

	attempt, _ := strconv.Atoi(r.Header.Get(headerAttempt))
	if attempt <= 0 {
		attempt = 1
	}

	result := h.ingress.HandleRequest(r.Context(), webhook.IncomingRequest{
		Payload:    body,
		Signature:  r.Header.Get(headerSignature),
		DeliveryID: r.Header.Get(headerDelivery),
		EventType:  r.Header.Get(headerEvent),
		Attempt:    attempt,
	})

	if err := middleware.WriteJSON(w, result.Failure.HTTPStatus(), result); err != nil {
		h.logger.Error("Failed to encode webhook response", err)
	}
}
