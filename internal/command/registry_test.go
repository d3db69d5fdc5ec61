package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customizer/internal/models"
)

func noopHandler(_ context.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(Registration{Action: "save_settings", Handler: noopHandler})
	require.NoError(t, err)

	found, ok := reg.Lookup("save_settings")
	require.True(t, ok)
	assert.Equal(t, "save_settings", found.Action)
	assert.Equal(t, models.PermissionAdmin, found.RequiredPermission, "permission defaults to admin")

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	reg := NewRegistry()

	assert.Error(t, reg.Register(Registration{Handler: noopHandler}), "empty action")
	assert.Error(t, reg.Register(Registration{Action: "save_settings"}), "missing handler")

	require.NoError(t, reg.Register(Registration{Action: "save_settings", Handler: noopHandler}))
	assert.Error(t, reg.Register(Registration{Action: "save_settings", Handler: noopHandler}), "duplicate")
}

func TestRegistryFreeze(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Registration{Action: "save_settings", Handler: noopHandler}))

	reg.Freeze()

	err := reg.Register(Registration{Action: "reset_settings", Handler: noopHandler})
	assert.Error(t, err)

	_, ok := reg.Lookup("save_settings")
	assert.True(t, ok, "lookup still works after freeze")
}

func TestRegistryActions(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Registration{Action: "save_settings", Handler: noopHandler}))
	require.NoError(t, reg.Register(Registration{Action: "export_settings", Handler: noopHandler}))
	require.NoError(t, reg.Register(Registration{Action: "reset_settings", Handler: noopHandler}))

	assert.Equal(t, []string{"export_settings", "reset_settings", "save_settings"}, reg.Actions())
}
