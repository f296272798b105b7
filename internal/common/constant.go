package common

const (
	// RefreshTokenCookieName carries the refresh secret between the browser and the API.
	RefreshTokenCookieName = "refresh_token"

	// GoogleProvider names the federated provider in external-login links.
	GoogleProvider = "Google"

	// DefaultRole is assigned to every newly created account unless overridden by config.
	DefaultRole = "User"
)
