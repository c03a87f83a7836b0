// Package session holds small pieces of per-session state (rate-limit
// windows, CSRF tokens) behind a narrow get/set/clear contract.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrEmptySessionID is returned when a caller passes no session id.
var ErrEmptySessionID = errors.New("session: empty session id")

// Store keeps opaque values keyed by session id and key.
// Values written for one session are never visible to another.
type Store interface {
	// Get returns the value and true, or nil and false when absent or expired.
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)

	// Set writes value with the given ttl. ttl <= 0 means no expiry.
	Set(ctx context.Context, sessionID, key string, value []byte, ttl time.Duration) error

	// Clear removes the key. Clearing a missing key is not an error.
	Clear(ctx context.Context, sessionID, key string) error
}

func checkID(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return nil
}
