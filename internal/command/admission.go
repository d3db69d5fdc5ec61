package command

import (
	"context"

	"customizer/internal/models"
	"customizer/internal/ratelimit"
	"customizer/internal/token"
)

// Gate performs admission control before any handler executes: anti-forgery
// token, authorization, then rate limit, short-circuiting in that order.
// Denials are terminal for the call; they are never queued for retry.
//
// The only side effect of a successful admission is the rate counter's own
// increment.
type Gate struct {
	tokens  *token.Issuer
	limiter ratelimit.Limiter
}

// NewGate creates an admission gate. A nil limiter disables the rate check
// (used by tests and by deployments that rely on the transport limiter
// alone).
func NewGate(tokens *token.Issuer, limiter ratelimit.Limiter) *Gate {
	return &Gate{
		tokens:  tokens,
		limiter: limiter,
	}
}

// Admit validates the request against the registration's requirements.
// It returns nil when the request may proceed to sanitization and dispatch,
// or a *CommandError naming the denial reason.
func (g *Gate) Admit(ctx context.Context, req *models.CommandRequest, actor *models.Actor, reg Registration) error {
	// Token check: the token must be scoped to this action and actor.
	if !g.tokens.Validate(req.Token, req.Action, actor.ID) {
		return NewInvalidTokenError()
	}

	// Authorization check: anonymous actors pass only where the
	// registration allows them; everyone else needs the required level.
	if actor.Anonymous() {
		if !reg.AllowAnonymous {
			return NewInsufficientAuthorizationError(req.Action)
		}
	} else if !actor.HasPermission(reg.RequiredPermission) {
		return NewInsufficientAuthorizationError(req.Action)
	}

	// Rate check: the counter increments even when this denies.
	if g.limiter != nil {
		decision, err := g.limiter.Check(ctx, req.Action, actor.ID)
		if err != nil {
			return NewRequestFailedError(err)
		}
		if !decision.Allowed {
			return NewRateLimitedError()
		}
	}

	return nil
}
