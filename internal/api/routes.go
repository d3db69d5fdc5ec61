package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"customizer/internal/models"
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
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// WithRateLimiter adds rate limiting middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, directory *Directory, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Dispatch and token issuance resolve the actor when a session is
	// presented but never reject at the transport; per-action
	// authorization is the admission gate's job.
	dispatchAPI := api.PathPrefix("/commands").Subrouter()
	if config.Security.EnableAuth {
		dispatchAPI.Use(OptionalAuth(directory))
	} else {
		dispatchAPI.Use(localActor())
	}
	dispatchAPI.HandleFunc("", handlers.ListActions).Methods("GET")
	dispatchAPI.HandleFunc("/{action}", handlers.DispatchCommand).Methods("POST")
	dispatchAPI.HandleFunc("/{action}", methodNotAllowedHandler).Methods("GET", "PUT", "DELETE", "PATCH")
	dispatchAPI.HandleFunc("/{action}/token", handlers.IssueToken).Methods("GET")

	if config.Security.EnableAuth {
		queueReadAPI := api.PathPrefix("/queue").Subrouter()
		queueReadAPI.Use(sessionAuth(directory))
		queueReadAPI.Use(RequirePermission(models.PermissionRead))
		queueReadAPI.HandleFunc("", handlers.ListQueue).Methods("GET")
		queueReadAPI.HandleFunc("/{ticket_id}", handlers.TicketStatus).Methods("GET")

		queueAdminAPI := api.PathPrefix("/queue").Subrouter()
		queueAdminAPI.Use(sessionAuth(directory))
		queueAdminAPI.Use(RequirePermission(models.PermissionAdmin))
		queueAdminAPI.HandleFunc("/process", handlers.ProcessQueue).Methods("POST")
		queueAdminAPI.HandleFunc("/cleanup", handlers.CleanupQueue).Methods("POST")
		queueAdminAPI.HandleFunc("/{ticket_id}/retry", handlers.RetryTicket).Methods("POST")
	} else {
		api.HandleFunc("/queue", handlers.ListQueue).Methods("GET")
		api.HandleFunc("/queue/process", handlers.ProcessQueue).Methods("POST")
		api.HandleFunc("/queue/cleanup", handlers.CleanupQueue).Methods("POST")
		api.HandleFunc("/queue/{ticket_id}", handlers.TicketStatus).Methods("GET")
		api.HandleFunc("/queue/{ticket_id}/retry", handlers.RetryTicket).Methods("POST")
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	api.PathPrefix("").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}).Methods("OPTIONS")

	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusMethodNotAllowed,
		models.NewErrorEnvelope("", models.ErrorCodeInvalidPayload, "Method not allowed"))
}

// corsMiddleware handles Cross-Origin Resource Sharing
func corsMiddleware(corsConfig models.CORSConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(corsConfig.AllowedOrigins) > 0 {
				origin := r.Header.Get("Origin")
				if origin != "" && (contains(corsConfig.AllowedOrigins, "*") || contains(corsConfig.AllowedOrigins, origin)) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
			}
			if len(corsConfig.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsConfig.AllowedMethods, ", "))
			}
			if len(corsConfig.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsConfig.AllowedHeaders, ", "))
			}
			if corsConfig.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", corsConfig.MaxAge))
			}
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeEnvelope(w, http.StatusInternalServerError,
					models.NewErrorEnvelope("", models.ErrorCodeRequestFailed, "Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
