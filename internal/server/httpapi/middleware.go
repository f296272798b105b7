package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/auth"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const principalKey ctxKey = "principal"

// PrincipalFrom returns the authenticated caller stored by authenticate.
func PrincipalFrom(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok
}

// authenticate requires a valid "Authorization: Bearer <access token>".
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.writeError(w, r, common.Unauthorized("Missing access token"))
			return
		}

		p, err := h.tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			h.logger.Debug(r.Context(), "access token rejected", "error", err)
			h.writeError(w, r, common.Unauthorized("Invalid access token"))
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog writes one structured record per request.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Info(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// cors admits the configured frontend origins, credentials included.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			hdr := w.Header()
			hdr.Add("Vary", "Origin")
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				hdr.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				hdr.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
