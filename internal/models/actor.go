package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission represents the authorization levels an actor can hold.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// AnonymousActorID identifies requests carrying no session credential.
const AnonymousActorID = "anonymous"

// Actor is the identity behind a request, derived from the client session.
// The raw session key is never persisted; only its SHA-256 hex hash and an
// 8-character display prefix are stored.
type Actor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	KeyHash     string    `json:"key_hash"`
	Prefix      string    `json:"prefix"`
	Permissions []string  `json:"permissions"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewActor creates a new Actor from a raw session key string.
func NewActor(id, name, rawKey string, permissions []string) *Actor {
	now := time.Now().UTC()
	prefix := rawKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return &Actor{
		ID:          id,
		Name:        name,
		KeyHash:     HashSessionKey(rawKey),
		Prefix:      prefix,
		Permissions: permissions,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AnonymousActor returns the identity used for requests without a session.
// It holds no permissions and is only admitted to actions that allow
// anonymous access.
func AnonymousActor() *Actor {
	return &Actor{
		ID:      AnonymousActorID,
		Name:    "anonymous",
		Enabled: true,
	}
}

// Anonymous reports whether the actor carries no authenticated session.
func (a *Actor) Anonymous() bool {
	return a == nil || a.ID == AnonymousActorID || a.KeyHash == ""
}

// HasPermission returns true when the actor is enabled and holds the given
// permission. Permissions form a hierarchy: admin grants everything, write
// includes read.
func (a *Actor) HasPermission(required Permission) bool {
	if a == nil || !a.Enabled {
		return false
	}
	for _, p := range a.Permissions {
		switch Permission(p) {
		case PermissionAdmin:
			return true
		case PermissionWrite:
			if required == PermissionRead || required == PermissionWrite {
				return true
			}
		case required:
			return true
		}
		if p == "*" {
			return true
		}
	}
	return false
}

// GenerateSessionKey produces a new random session key in the format
// cst_<44 url-safe base64 chars>.
func GenerateSessionKey() (string, error) {
	b := make([]byte, 33) // 33 bytes → 44 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return "cst_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSessionKey computes the SHA-256 hex digest of a raw session key.
func HashSessionKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// NewActorID generates a new UUID v4 for use as an Actor ID.
func NewActorID() string {
	return uuid.New().String()
}
