package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"customizer/internal/models"
)

// contextKey is a private type for request context values.
type contextKey string

const actorContextKey contextKey = "actor"

// ActorFromRequest returns the authenticated actor for a request, or the
// anonymous actor when the request carries no valid session.
func ActorFromRequest(r *http.Request) *models.Actor {
	if actor, ok := r.Context().Value(actorContextKey).(*models.Actor); ok {
		return actor
	}
	return models.AnonymousActor()
}

// sessionKeyFromHeader extracts the bearer session key, empty when absent
// or malformed.
func sessionKeyFromHeader(r *http.Request) string {
	const prefix = "Bearer "
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return authHeader[len(prefix):]
}

// sessionAuth authenticates requests against the actor directory and
// rejects requests without a valid enabled session key.
func sessionAuth(directory *Directory) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := sessionKeyFromHeader(r)
			if key == "" {
				writeEnvelope(w, http.StatusUnauthorized,
					models.NewErrorEnvelope("", models.ErrorCodeInvalidToken, "Authorization required"))
				return
			}

			actor, err := directory.Lookup(r.Context(), key)
			if err != nil {
				writeEnvelope(w, http.StatusUnauthorized,
					models.NewErrorEnvelope("", models.ErrorCodeInvalidToken, "Invalid session key"))
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the session key when present but never rejects.
// Handlers downstream see either the authenticated actor or anonymous;
// per-action authorization happens at the admission gate.
func OptionalAuth(directory *Directory) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := sessionKeyFromHeader(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := directory.Lookup(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// localActor injects a full-permission actor into every request. Used when
// authentication is disabled; the admission gate still runs its token and
// rate checks against this identity.
func localActor() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := &models.Actor{
				ID:          "local",
				Name:        "unauthenticated",
				KeyHash:     models.HashSessionKey("local"),
				Permissions: []string{string(models.PermissionAdmin)},
				Enabled:     true,
			}
			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission creates middleware that enforces a specific permission
// on the authenticated actor.
func RequirePermission(required models.Permission) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromRequest(r)
			if actor.Anonymous() || !actor.HasPermission(required) {
				writeEnvelope(w, http.StatusForbidden,
					models.NewErrorEnvelope("", models.ErrorCodeInsufficientAuth,
						"Insufficient permissions for this operation"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeEnvelope writes a response envelope with the given HTTP status.
func writeEnvelope(w http.ResponseWriter, statusCode int, env *models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(env)
}
