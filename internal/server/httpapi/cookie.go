package httpapi

import (
	"net/http"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
)

const cookiePath = "/api/auth"

func setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    token,
		Path:     cookiePath,
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func deleteRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
