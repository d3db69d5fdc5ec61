// Package token issues and validates anti-forgery tokens for command
// dispatch. A token is an HMAC-SHA256 digest scoped to one action and one
// actor, valid for the current time window and the one before it. Tokens
// prove the request originated from a client session that asked for the
// action; they are not a session credential themselves.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Issuer creates and checks action-scoped anti-forgery tokens.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewIssuer creates a token issuer. lifetime is the width of one validity
// window; a token stays valid through the window it was issued in plus the
// following one, so effective validity ranges from lifetime to 2x lifetime.
func NewIssuer(secret string, lifetime time.Duration) *Issuer {
	return &Issuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Issue returns a token for the given action and actor.
func (i *Issuer) Issue(action, actorID string) string {
	return i.digest(action, actorID, i.tick(i.now()))
}

// Validate reports whether the token matches the action and actor for the
// current or previous window. Comparison is constant-time.
func (i *Issuer) Validate(tok, action, actorID string) bool {
	if tok == "" {
		return false
	}
	t := i.tick(i.now())
	for _, tick := range []int64{t, t - 1} {
		if hmac.Equal([]byte(tok), []byte(i.digest(action, actorID, tick))) {
			return true
		}
	}
	return false
}

// Lifetime returns the validity window width, for reporting expiry to clients.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// tick identifies the validity window containing t. Nanosecond arithmetic
// keeps sub-second lifetimes from dividing by zero.
func (i *Issuer) tick(t time.Time) int64 {
	return t.UnixNano() / int64(i.lifetime)
}

func (i *Issuer) digest(action, actorID string, tick int64) string {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%d|%s|%s", tick, action, actorID)
	return hex.EncodeToString(mac.Sum(nil))[:20]
}
