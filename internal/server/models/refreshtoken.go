package models

import "time"

// RefreshToken is a server-side session record keyed by its opaque secret.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	Expires   time.Time
	Revoked   bool
}

// IsExpired reports whether the token can no longer be redeemed at now.
// A token expiring exactly at now is expired.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.Expires)
}

// IsActive reports whether the token is redeemable at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}

// RefreshTokenWithOwner is the result of a lookup joined with the owning user.
type RefreshTokenWithOwner struct {
	Token RefreshToken
	Owner User
}
