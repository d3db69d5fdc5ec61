package models

import (
	"errors"
	"fmt"
	"strings"
)

// CommandRequest is the ephemeral, per-call envelope of an inbound command.
// It is never persisted; the dispatcher discards it once a response envelope
// has been produced.
type CommandRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
	Token   string         `json:"token"`
}

// maxActionLength bounds action names; anything longer is a client bug.
const maxActionLength = 64

// Validate checks the structural requirements of a command request. Payload
// content is validated later by the action's registered sanitizer.
func (r *CommandRequest) Validate() error {
	if r.Action == "" {
		return errors.New("action is required")
	}
	if len(r.Action) > maxActionLength {
		return fmt.Errorf("action exceeds %d characters", maxActionLength)
	}
	for _, c := range r.Action {
		if !isActionChar(c) {
			return fmt.Errorf("action contains invalid character %q", c)
		}
	}
	return nil
}

// Normalize canonicalizes the action name for registry lookup.
func (r *CommandRequest) Normalize() {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Token = strings.TrimSpace(r.Token)
	if r.Payload == nil {
		r.Payload = make(map[string]any)
	}
}

func isActionChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}
