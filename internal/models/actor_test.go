package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActor(t *testing.T) {
	actor := NewActor("id-1", "ci-bot", "cst_supersecretkey", []string{"write"})

	assert.Equal(t, "id-1", actor.ID)
	assert.Equal(t, "cst_supe", actor.Prefix)
	assert.Equal(t, HashSessionKey("cst_supersecretkey"), actor.KeyHash)
	assert.True(t, actor.Enabled)
	assert.False(t, actor.Anonymous())
}

func TestAnonymousActor(t *testing.T) {
	actor := AnonymousActor()

	assert.True(t, actor.Anonymous())
	assert.False(t, actor.HasPermission(PermissionRead))

	var nilActor *Actor
	assert.True(t, nilActor.Anonymous())
	assert.False(t, nilActor.HasPermission(PermissionRead))
}

func TestActorHasPermission(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		required    Permission
		want        bool
	}{
		{"admin grants read", []string{"admin"}, PermissionRead, true},
		{"admin grants write", []string{"admin"}, PermissionWrite, true},
		{"admin grants admin", []string{"admin"}, PermissionAdmin, true},
		{"write grants read", []string{"write"}, PermissionRead, true},
		{"write grants write", []string{"write"}, PermissionWrite, true},
		{"write denies admin", []string{"write"}, PermissionAdmin, false},
		{"read denies write", []string{"read"}, PermissionWrite, false},
		{"read grants read", []string{"read"}, PermissionRead, true},
		{"wildcard grants everything", []string{"*"}, PermissionAdmin, true},
		{"no permissions", nil, PermissionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := NewActor("id", "test", "key", tt.permissions)
			assert.Equal(t, tt.want, actor.HasPermission(tt.required))
		})
	}
}

func TestDisabledActorHasNoPermissions(t *testing.T) {
	actor := NewActor("id", "test", "key", []string{"admin"})
	actor.Enabled = false

	assert.False(t, actor.HasPermission(PermissionRead))
}

func TestGenerateSessionKey(t *testing.T) {
	key, err := GenerateSessionKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "cst_"))
	assert.Len(t, key, 4+44)

	other, err := GenerateSessionKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHashSessionKey(t *testing.T) {
	hash := HashSessionKey("cst_example")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashSessionKey("cst_example"))
	assert.NotEqual(t, hash, HashSessionKey("cst_other"))
}
