package models

import (
	"strings"
	"time"
)

// User is a local account. PasswordHash is empty for accounts that only
// sign in through a federated provider.
type User struct {
	ID                string
	UserName          string
	Email             string
	PasswordHash      string
	EmailConfirmed    bool
	AccessFailedCount int
	LockoutEnd        *time.Time
	CreatedAt         time.Time
}

// HasPassword reports whether the account can sign in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsLockedOut reports whether the lockout window is still open at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// NormalizeName is the case-insensitive lookup key for usernames and emails.
func NormalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ExternalLogin links a user to a federated identity.
type ExternalLogin struct {
	Provider    string
	ProviderKey string
	UserID      string
	DisplayName string
}
