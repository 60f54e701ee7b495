package api

import (
	"net/http"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml"
			}),
		))
	}
}

// WithRequestMonitor records every routed request, e.g. with
// monitor.Monitor.Middleware.
func WithRequestMonitor(middleware mux.MiddlewareFunc) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// Limits holds the rate limit policies applied to the public endpoints. A nil
// policy leaves its endpoint unlimited.
type Limits struct {
	Registration *ratelimit.Policy
	ShortLinks   *ratelimit.Policy
}

func limited(p *ratelimit.Policy, h http.Handler) http.Handler {
	if p == nil {
		return h
	}
	return p.Middleware(h)
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, limits Limits, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	// The client address must be pinned before anything reads it.
	router.Use(clientIPMiddleware(config.Security.TrustProxyHeaders))
	for _, opt := range opts {
		opt(router)
	}
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/s/{key}", handlers.ResolveShortLink).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")

	api.Handle("/public/events/{event_id}/register",
		limited(limits.Registration, http.HandlerFunc(handlers.RegisterForEvent))).Methods("POST")

	// Authentication runs first so the policy can key on the user.
	api.Handle("/short-links",
		OptionalAuth(handlers.storage)(limited(limits.ShortLinks, http.HandlerFunc(handlers.CreateShortLink)))).Methods("POST")

	readAPI := api.PathPrefix("").Subrouter()
	readAPI.Use(RequireAuth(handlers.storage))
	readAPI.Use(RequirePermission(PermissionRead))
	readAPI.HandleFunc("/events/{event_id}/registrations", handlers.ListRegistrations).Methods("GET")

	adminAPI := api.PathPrefix("").Subrouter()
	adminAPI.Use(RequireAuth(handlers.storage))
	adminAPI.Use(RequirePermission(PermissionAdmin))
	adminAPI.HandleFunc("/admin/keys", handlers.CreateAPIKey).Methods("POST")
	adminAPI.HandleFunc("/monitor/stats", handlers.MonitorStats).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
}
