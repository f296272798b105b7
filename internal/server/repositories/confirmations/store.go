// Package confirmations stores purpose-scoped one-time tokens (email
// confirmation, password reset). Only a digest of each token is kept and at
// most one token is live per (user, purpose).
package confirmations

import (
	"context"
	"time"
)

// Purposes understood by the service.
const (
	PurposeConfirmEmail  = "confirm_email"
	PurposeResetPassword = "reset_password"
)

// Store persists one-time token digests.
type Store interface {
	// Set records digest for (userID, purpose), replacing any earlier one.
	Set(ctx context.Context, userID, purpose, digest string, ttl time.Duration) error
	// Consume deletes the record when digest matches and it has not expired.
	// It reports whether a record was consumed; at most one caller wins.
	Consume(ctx context.Context, userID, purpose, digest string) (bool, error)
	// Invalidate drops the record for (userID, purpose) if any.
	Invalidate(ctx context.Context, userID, purpose string) error
}
