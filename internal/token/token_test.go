package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(at time.Time) *Issuer {
	i := NewIssuer("test-secret", 15*time.Minute)
	i.now = func() time.Time { return at }
	return i
}

func TestIssueAndValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(now)

	tok := issuer.Issue("save_settings", "actor-1")
	require.Len(t, tok, 20)

	assert.True(t, issuer.Validate(tok, "save_settings", "actor-1"))
}

func TestValidateRejectsWrongScope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(now)

	tok := issuer.Issue("save_settings", "actor-1")

	assert.False(t, issuer.Validate(tok, "reset_settings", "actor-1"), "token is action-scoped")
	assert.False(t, issuer.Validate(tok, "save_settings", "actor-2"), "token is actor-scoped")
	assert.False(t, issuer.Validate("", "save_settings", "actor-1"))
	assert.False(t, issuer.Validate("not-a-token", "save_settings", "actor-1"))
}

func TestSubSecondLifetime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer("test-secret", 500*time.Millisecond)
	issuer.now = func() time.Time { return now }

	tok := issuer.Issue("save_settings", "actor-1")
	assert.True(t, issuer.Validate(tok, "save_settings", "actor-1"))

	// Still valid one window later, expired after two.
	issuer.now = func() time.Time { return now.Add(500 * time.Millisecond) }
	assert.True(t, issuer.Validate(tok, "save_settings", "actor-1"))
	issuer.now = func() time.Time { return now.Add(time.Second) }
	assert.False(t, issuer.Validate(tok, "save_settings", "actor-1"))
}

func TestValidateAcceptsPreviousWindow(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(issued)
	tok := issuer.Issue("save_settings", "actor-1")

	// One window later the token still validates; two windows later it
	// does not.
	issuer.now = func() time.Time { return issued.Add(15 * time.Minute) }
	assert.True(t, issuer.Validate(tok, "save_settings", "actor-1"))

	issuer.now = func() time.Time { return issued.Add(30 * time.Minute) }
	assert.False(t, issuer.Validate(tok, "save_settings", "actor-1"))
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(now)

	other := NewIssuer("different-secret", 15*time.Minute)
	other.now = issuer.now

	tok := other.Issue("save_settings", "actor-1")
	assert.False(t, issuer.Validate(tok, "save_settings", "actor-1"))
}
