// Package refreshtokens declares the storage contract for refresh-token
// session records.
package refreshtokens

import (
	"context"
	"time"

	"github.com/QKhanh04/innerg-api/internal/server/models"
)

// Repository persists refresh tokens keyed by their opaque secret.
type Repository interface {
	// Create stores a new token record.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindWithOwner looks a token up together with the user owning it.
	// Absent tokens yield common.ErrorNotFound.
	FindWithOwner(ctx context.Context, token string) (*models.RefreshTokenWithOwner, error)

	// Revoke flips revoked from false to true. It reports false when the token
	// is unknown or was already revoked, so at most one caller wins.
	Revoke(ctx context.Context, token string) (bool, error)

	// RevokeAllForUser revokes every non-revoked token of userID and returns
	// how many were flipped.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredOrRevoked removes tokens with expires_at < now or revoked
	// set, as of the statement's snapshot, and returns how many went away.
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
}
