package settings

import (
	"context"
	"errors"
	"fmt"

	"customizer/internal/command"
	"customizer/internal/models"
)

// Command action names exposed by this feature.
const (
	ActionSaveSettings   = "save_settings"
	ActionResetSettings  = "reset_settings"
	ActionExportSettings = "export_settings"
)

// Register wires the settings commands into the dispatch registry.
func Register(reg *command.Registry, svc *Service) error {
	registrations := []command.Registration{
		{
			Action:             ActionSaveSettings,
			Handler:            svc.handleSave,
			Sanitize:           sanitizeSave,
			RequiredPermission: models.PermissionWrite,
			RetryEnabled:       true,
		},
		{
			Action:             ActionResetSettings,
			Handler:            svc.handleReset,
			RequiredPermission: models.PermissionAdmin,
			RetryEnabled:       true,
		},
		{
			Action:             ActionExportSettings,
			Handler:            svc.handleExport,
			RequiredPermission: models.PermissionRead,
		},
	}
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("failed to register %s: %w", r.Action, err)
		}
	}
	return nil
}

// sanitizeSave requires an options object and keeps only the fields the
// save handler reads.
func sanitizeSave(payload map[string]any) (map[string]any, error) {
	rawOptions, ok := payload["options"]
	if !ok {
		return nil, errors.New("missing required field: options")
	}
	options, ok := rawOptions.(map[string]any)
	if !ok {
		return nil, errors.New("field options must be an object")
	}
	if len(options) == 0 {
		return nil, errors.New("field options must not be empty")
	}

	clean := map[string]any{"options": options}
	if raw, ok := payload["schema_version"]; ok {
		version, ok := raw.(string)
		if !ok {
			return nil, errors.New("field schema_version must be a string")
		}
		if err := checkSchema(version); err != nil {
			return nil, err
		}
		clean["schema_version"] = version
	}
	return clean, nil
}

func (s *Service) handleSave(ctx context.Context, payload map[string]any) (map[string]any, error) {
	options, _ := payload["options"].(map[string]any)
	schemaVersion, _ := payload["schema_version"].(string)

	doc, err := s.Save(ctx, schemaVersion, options)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version": doc.SchemaVersion,
		"saved":          len(options),
		"updated_at":     doc.UpdatedAt,
	}, nil
}

func (s *Service) handleReset(ctx context.Context, _ map[string]any) (map[string]any, error) {
	doc, err := s.Reset(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version": doc.SchemaVersion,
		"updated_at":     doc.UpdatedAt,
	}, nil
}

func (s *Service) handleExport(ctx context.Context, _ map[string]any) (map[string]any, error) {
	doc, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version": doc.SchemaVersion,
		"options":        doc.Options,
		"updated_at":     doc.UpdatedAt,
	}, nil
}
