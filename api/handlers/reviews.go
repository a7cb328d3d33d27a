package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/igorsal/pr-sentinel/api/middleware"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

type ReviewsHandler struct {
	orchestrator interfaces.Orchestrator
	store        interfaces.ReviewStore
	validator    *validator.Validate
	logger       interfaces.Logger
}

// CreateReviewRequest triggers a review of one pull request
type CreateReviewRequest struct {
	Owner      string `json:"owner" validate:"required"`
	Repo       string `json:"repo" validate:"required"`
	PullNumber int    `json:"pull_number" validate:"gt=0"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
}

// NewReviewsHandler creates the review API handler. store may be nil in
// dry-run deployments, which then answer reads with 503.
func NewReviewsHandler(orchestrator interfaces.Orchestrator, store interfaces.ReviewStore, logger interfaces.Logger) *ReviewsHandler {
	return &ReviewsHandler{
		orchestrator: orchestrator,
		store:        store,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Create runs a review synchronously and returns its outcome
func (h *ReviewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewValidationError("invalid JSON body").WithCause(err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewValidationError(err.Error()))
		return
	}

	result := h.orchestrator.ProcessPR(r.Context(), models.ProcessPRParams{
		Owner:      req.Owner,
		Repo:       req.Repo,
		PullNumber: req.PullNumber,
		Title:      req.Title,
		Author:     req.Author,
	})

	if err := middleware.WriteJSON(w, resultStatus(result), result); err != nil {
		h.logger.Error("Failed to encode review response", err)
	}
}

// Get returns a stored review by ID
func (h *ReviewsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewUnavailableError("review store"))
		return
	}

	review, err := h.store.GetReview(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	if err := middleware.WriteJSON(w, http.StatusOK, review); err != nil {
		h.logger.Error("Failed to encode review", err)
	}
}

// List returns the reviews of one pull request
func (h *ReviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewUnavailableError("review store"))
		return
	}

	q := r.URL.Query()
	owner, repo := q.Get("owner"), q.Get("repo")
	number, err := strconv.Atoi(q.Get("pull_number"))
	if owner == "" || repo == "" || err != nil || number <= 0 {
		middleware.WriteError(w, r, h.logger,
			pkgerrors.NewValidationError("owner, repo and a positive pull_number are required"))
		return
	}

	reviews, err := h.store.ListReviews(r.Context(), owner, repo, number)
	if err != nil {
		middleware.WriteError(w, r, h.logger, fmt.Errorf("list reviews: %w", err))
		return
	}
	if err := middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reviews": reviews,
		"count":   len(reviews),
	}); err != nil {
		h.logger.Error("Failed to encode reviews", err)
	}
}

func resultStatus(result *models.ProcessPRResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case models.ErrCodeInvalidParams:
		return http.StatusBadRequest
	case models.ErrCodeDiffFetchFailed, models.ErrCodeAIReviewFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
