package gate

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

const (
	// CSRFHeader carries the token on mutating calls
	CSRFHeader = "X-CSRF-Token"

	// session key holding the expected token
	csrfKey = "csrf"
)

// CSRF issues and verifies session-bound tokens.
type CSRF struct {
	store session.Store
	ttl   time.Duration
}

// NewCSRF creates a CSRF checker storing tokens for ttl.
func NewCSRF(store session.Store, ttl time.Duration) *CSRF {
	return &CSRF{store: store, ttl: ttl}
}

// Token returns the session's token, creating one on first use.
func (x *CSRF) Token(ctx context.Context, sessionID string) (string, error) {
	raw, ok, err := x.store.Get(ctx, sessionID, csrfKey)
	if err != nil {
		return "", fmt.Errorf("load csrf token: %w", err)
	}
	if ok && len(raw) > 0 {
		return string(raw), nil
	}

	token := uuid.NewString()
	if err := x.store.Set(ctx, sessionID, csrfKey, []byte(token), x.ttl); err != nil {
		return "", fmt.Errorf("store csrf token: %w", err)
	}
	return token, nil
}

// Verify compares token with the session's expected value.
func (x *CSRF) Verify(ctx context.Context, sessionID, token string) error {
	if token == "" {
		return apperror.ErrCSRFMissing
	}
	if sessionID == "" {
		return apperror.ErrCSRFInvalid
	}

	raw, ok, err := x.store.Get(ctx, sessionID, csrfKey)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("load csrf token: %w", err))
	}
	if !ok || subtle.ConstantTimeCompare(raw, []byte(token)) != 1 {
		return apperror.ErrCSRFInvalid
	}
	return nil
}
