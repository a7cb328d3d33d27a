package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/igorsal/pr-sentinel/api/middleware"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
)

// RouterConfig bundles the handlers and shared dependencies of the HTTP API
type RouterConfig struct {
	Health       *HealthHandler
	Webhook      *WebhookHandler
	Reviews      *ReviewsHandler
	Repositories *RepositoriesHandler
	Metrics      http.Handler
	AdminToken   string
	Logger       interfaces.Logger
	Collector    interfaces.MetricsCollector
}

// NewRouter wires routes and middleware. Admin routes sit behind the admin
// token; the webhook authenticates through its signature.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.PanicRecoveryMiddleware(cfg.Logger))
	router.Use(middleware.LoggingMiddleware(cfg.Logger))
	router.Use(middleware.MetricsMiddleware(cfg.Collector))

	router.HandleFunc("/health", cfg.Health.Handle).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}
	router.HandleFunc("/webhooks/github", cfg.Webhook.Handle).Methods(http.MethodPost)

	admin := router.PathPrefix("").Subrouter()
	admin.Use(middleware.AdminAuthMiddleware(cfg.AdminToken, cfg.Logger))

	admin.HandleFunc("/reviews", cfg.Reviews.Create).Methods(http.MethodPost)
	admin.HandleFunc("/reviews", cfg.Reviews.List).Methods(http.MethodGet)
	admin.HandleFunc("/reviews/{id}", cfg.Reviews.Get).Methods(http.MethodGet)

	admin.HandleFunc("/repositories", cfg.Repositories.List).Methods(http.MethodGet)
	admin.HandleFunc("/repositories", cfg.Repositories.Add).Methods(http.MethodPost)
	admin.HandleFunc("/repositories/poll", cfg.Repositories.Poll).Methods(http.MethodPost)
	admin.HandleFunc("/repositories/{owner}/{name}", cfg.Repositories.Remove).Methods(http.MethodDelete)

	return router
}
