package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/igorsal/pr-sentinel/api/middleware"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

// RepositoryMonitor is the poller surface exposed over HTTP
type RepositoryMonitor interface {
	AddRepository(repo models.MonitoredRepository) bool
	RemoveRepository(repo models.MonitoredRepository) bool
	Repositories() []models.MonitoredRepository
	TrackedCount() int
	IsRunning() bool
}

type RepositoriesHandler struct {
	monitor   RepositoryMonitor
	poll      func(r *http.Request)
	validator *validator.Validate
	logger    interfaces.Logger
}

type RepositoriesResponse struct {
	Repositories []models.MonitoredRepository `json:"repositories"`
	Tracked      int                          `json:"tracked_pull_requests"`
	Polling      bool                         `json:"polling"`
}

// NewRepositoriesHandler creates the monitored repository API. poll runs one
// cycle with the request's context.
func NewRepositoriesHandler(monitor RepositoryMonitor, poll func(r *http.Request), logger interfaces.Logger) *RepositoriesHandler {
	return &RepositoriesHandler{
		monitor:   monitor,
		poll:      poll,
		validator: validator.New(),
		logger:    logger,
	}
}

// List returns the monitored repositories
func (h *RepositoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, http.StatusOK)
}

// Add starts monitoring a repository
func (h *RepositoriesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var repo models.MonitoredRepository
	if err := json.NewDecoder(r.Body).Decode(&repo); err != nil {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewValidationError("invalid JSON body").WithCause(err))
		return
	}
	if err := h.validator.Struct(repo); err != nil {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewValidationError(err.Error()))
		return
	}

	status := http.StatusOK
	if h.monitor.AddRepository(repo) {
		status = http.StatusCreated
		h.logger.Info("Repository added", "repository", repo.FullName())
	}
	h.writeState(w, status)
}

// Remove stops monitoring a repository and forgets its pull requests
func (h *RepositoriesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	repo := models.MonitoredRepository{Owner: vars["owner"], Name: vars["name"]}

	if !h.monitor.RemoveRepository(repo) {
		middleware.WriteError(w, r, h.logger,
			pkgerrors.NewNotFoundError("repository "+repo.FullName()+" is not monitored"))
		return
	}
	h.logger.Info("Repository removed", "repository", repo.FullName())
	h.writeState(w, http.StatusOK)
}

// Poll runs one poll cycle immediately
func (h *RepositoriesHandler) Poll(w http.ResponseWriter, r *http.Request) {
	if len(h.monitor.Repositories()) == 0 {
		middleware.WriteError(w, r, h.logger, pkgerrors.NewValidationError("no repositories are monitored"))
		return
	}
	h.poll(r)
	h.writeState(w, http.StatusOK)
}

func (h *RepositoriesHandler) writeState(w http.ResponseWriter, status int) {
	if err := middleware.WriteJSON(w, status, RepositoriesResponse{
		Repositories: h.monitor.Repositories(),
		Tracked:      h.monitor.TrackedCount(),
		Polling:      h.monitor.IsRunning(),
	}); err != nil {
		h.logger.Error("Failed to encode repositories", err)
	}
}
