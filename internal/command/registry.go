// Package command implements admission, dispatch, and retry enqueueing for
// client-issued actions. Handlers are registered once at startup into an
// explicit Registry owned by the composition root; there is no ambient
// registration hook and no global mutable state.
package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"customizer/internal/models"
)

// HandlerFunc executes one admitted action. The payload has already passed
// the action's sanitizer. Returned data is placed verbatim in the success
// envelope. Errors are transient by definition; the dispatcher decides
// whether to queue a retry based on the registration.
type HandlerFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

// SanitizeFunc validates and normalizes a raw payload before the handler
// runs. It must be a pure function: payload in, clean payload or error out.
type SanitizeFunc func(payload map[string]any) (map[string]any, error)

// Registration binds an action name to its handler and execution policy.
// Registrations are immutable for the process lifetime once the registry is
// frozen.
type Registration struct {
	// Action is the canonical (lowercase) action name.
	Action string

	// Handler executes the action.
	Handler HandlerFunc

	// Sanitize validates the payload before dispatch and before each
	// retry ticket snapshot. Nil means the payload passes through as-is.
	Sanitize SanitizeFunc

	// RequiredPermission is the authorization level the actor must hold.
	// Defaults to admin.
	RequiredPermission models.Permission

	// RetryEnabled queues a retry ticket when the handler fails.
	RetryEnabled bool

	// Timeout bounds one handler execution. Zero means the dispatcher's
	// configured default.
	Timeout time.Duration

	// AllowAnonymous admits requests that carry no authenticated session.
	AllowAnonymous bool
}

// Registry is the closed handler table. It is populated during startup,
// then frozen; lookup of an unregistered action fails at the registry, not
// inside a handler.
type Registry struct {
	entries map[string]Registration
	frozen  bool
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
	}
}

// Register adds an action to the table. It fails on duplicate actions,
// missing handlers, and any registration after Freeze, so wiring mistakes
// surface at startup rather than at call time.
func (r *Registry) Register(reg Registration) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register action %q", reg.Action)
	}
	if reg.Action == "" {
		return fmt.Errorf("registration requires an action name")
	}
	if reg.Handler == nil {
		return fmt.Errorf("registration for %q requires a handler", reg.Action)
	}
	if _, exists := r.entries[reg.Action]; exists {
		return fmt.Errorf("action %q is already registered", reg.Action)
	}
	if reg.RequiredPermission == "" {
		reg.RequiredPermission = models.PermissionAdmin
	}
	r.entries[reg.Action] = reg
	return nil
}

// Freeze seals the registry. Called once by the composition root after all
// owning features have registered their actions.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the registration for an action.
func (r *Registry) Lookup(action string) (Registration, bool) {
	reg, ok := r.entries[action]
	return reg, ok
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	actions := make([]string, 0, len(r.entries))
	for action := range r.entries {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}
