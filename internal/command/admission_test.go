package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customizer/internal/models"
	"customizer/internal/ratelimit"
	"customizer/internal/token"
)

// stubLimiter returns a scripted decision, recording whether it ran.
type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	called   bool
}

func (s *stubLimiter) Check(_ context.Context, _, _ string) (ratelimit.Decision, error) {
	s.called = true
	return s.decision, s.err
}

func testActor(permissions ...string) *models.Actor {
	return models.NewActor("actor-1", "test", "cst_testkey", permissions)
}

func admissionFixture(limiter ratelimit.Limiter) (*Gate, *token.Issuer) {
	tokens := token.NewIssuer("test-secret", 15*time.Minute)
	return NewGate(tokens, limiter), tokens
}

func TestAdmitAllowsValidRequest(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
	gate, tokens := admissionFixture(limiter)
	actor := testActor("write")

	req := &models.CommandRequest{
		Action: "save_settings",
		Token:  tokens.Issue("save_settings", actor.ID),
	}
	reg := Registration{Action: "save_settings", Handler: noopHandler, RequiredPermission: models.PermissionWrite}

	err := gate.Admit(context.Background(), req, actor, reg)

	assert.NoError(t, err)
	assert.True(t, limiter.called)
}

func TestAdmitRejectsBadToken(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
	gate, tokens := admissionFixture(limiter)
	actor := testActor("admin")

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-real-token"},
		{"wrong action", tokens.Issue("reset_settings", actor.ID)},
		{"wrong actor", tokens.Issue("save_settings", "someone-else")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &models.CommandRequest{Action: "save_settings", Token: tt.token}
			reg := Registration{Action: "save_settings", Handler: noopHandler, RequiredPermission: models.PermissionWrite}

			err := gate.Admit(context.Background(), req, actor, reg)

			var cerr *CommandError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, models.ErrorCodeInvalidToken, cerr.Code)
		})
	}

	// Token failures short-circuit before the rate limiter.
	assert.False(t, limiter.called)
}

func TestAdmitRejectsInsufficientAuthorization(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
	gate, tokens := admissionFixture(limiter)
	actor := testActor("read")

	req := &models.CommandRequest{
		Action: "save_settings",
		Token:  tokens.Issue("save_settings", actor.ID),
	}
	reg := Registration{Action: "save_settings", Handler: noopHandler, RequiredPermission: models.PermissionWrite}

	err := gate.Admit(context.Background(), req, actor, reg)

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrorCodeInsufficientAuth, cerr.Code)
	assert.False(t, limiter.called, "authorization failures short-circuit before the rate check")
}

func TestAdmitAnonymousActor(t *testing.T) {
	gate, tokens := admissionFixture(&stubLimiter{decision: ratelimit.Decision{Allowed: true}})
	actor := models.AnonymousActor()

	req := &models.CommandRequest{
		Action: "export_settings",
		Token:  tokens.Issue("export_settings", actor.ID),
	}

	open := Registration{Action: "export_settings", Handler: noopHandler, AllowAnonymous: true}
	assert.NoError(t, gate.Admit(context.Background(), req, actor, open))

	closed := Registration{Action: "export_settings", Handler: noopHandler, RequiredPermission: models.PermissionRead}
	err := gate.Admit(context.Background(), req, actor, closed)
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrorCodeInsufficientAuth, cerr.Code)
}

func TestAdmitRejectsWhenRateLimited(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, Limit: 60, Count: 61}}
	gate, tokens := admissionFixture(limiter)
	actor := testActor("admin")

	req := &models.CommandRequest{
		Action: "save_settings",
		Token:  tokens.Issue("save_settings", actor.ID),
	}
	reg := Registration{Action: "save_settings", Handler: noopHandler, RequiredPermission: models.PermissionWrite}

	err := gate.Admit(context.Background(), req, actor, reg)

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrorCodeRateLimited, cerr.Code)
}

func TestAdmitWrapsLimiterFailure(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("store unavailable")}
	gate, tokens := admissionFixture(limiter)
	actor := testActor("admin")

	req := &models.CommandRequest{
		Action: "save_settings",
		Token:  tokens.Issue("save_settings", actor.ID),
	}
	reg := Registration{Action: "save_settings", Handler: noopHandler, RequiredPermission: models.PermissionWrite}

	err := gate.Admit(context.Background(), req, actor, reg)

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrorCodeRequestFailed, cerr.Code)
}

func TestAdmitNilLimiterSkipsRateCheck(t *testing.T) {
	gate, tokens := admissionFixture(nil)
	actor := testActor("admin")

	req := &models.CommandRequest{
		Action: "save_settings",
		Token:  tokens.Issue("save_settings", actor.ID),
	}
	reg := Registration{Action: "save_settings", Handler: noopHandler, RequiredPermission: models.PermissionWrite}

	assert.NoError(t, gate.Admit(context.Background(), req, actor, reg))
}
