// Package httpapi is the JSON-over-HTTP surface of the auth service,
// mounted under /api/auth.
package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server/auth"
	"github.com/QKhanh04/innerg-api/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the session orchestrator as seen by the handlers.
type Service interface {
	Login(ctx context.Context, identifier, password string) (*services.AuthResult, error)
	LoginWithFederatedIdentity(ctx context.Context, idToken string) (*services.AuthResult, error)
	Register(ctx context.Context, req services.RegisterRequest) (*services.RegisterResult, error)
	Refresh(ctx context.Context, secret string) (*services.AuthResult, error)
	Logout(ctx context.Context, secret string) error
	LogoutAll(ctx context.Context, userID string) error
	ConfirmEmail(ctx context.Context, userID, token string) error
	ResendConfirmation(ctx context.Context, email string) error
	GetCurrentUserInfo(ctx context.Context, userID string) (*services.UserInfo, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, userID, token, newPassword string) error
}

// TokenValidator checks access tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Principal, error)
}

type Handler struct {
	svc     Service
	tokens  TokenValidator
	logger  logging.Logger
	origins []string
}

func NewHandler(svc Service, tokens TokenValidator, logger logging.Logger, origins []string) *Handler {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{svc: svc, tokens: tokens, logger: logger.With("module", "http"), origins: origins}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors(h.origins))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/google-login", h.googleLogin)
		r.Post("/register", h.register)
		r.Post("/refresh-token", h.refreshToken)
		r.Post("/logout", h.logout)
		r.Get("/verify-email", h.verifyEmail)
		r.Post("/resend-verification-email", h.resendVerificationEmail)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/users/{userId}", h.userInfo)
			r.Get("/claims", h.claims)
		})
	})

	return r
}

type authResponse struct {
	Token    string `json:"token"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) session(w http.ResponseWriter, res *services.AuthResult) {
	setRefreshCookie(w, res.RefreshToken, res.RefreshExpires)
	writeJSON(w, http.StatusOK, authResponse{Token: res.AccessToken, UserName: res.UserName, Email: res.Email})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.EmailOrUsername, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.session(w, res)
}

func (h *Handler) googleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.LoginWithFederatedIdentity(r.Context(), req.IDToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.session(w, res)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Register(r.Context(), services.RegisterRequest{
		UserName:        req.UserName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"requiresEmailConfirmation": res.RequiresEmailConfirmation})
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	secret := refreshCookie(r)
	if secret == "" {
		h.writeError(w, r, common.Unauthorized("Missing refresh token"))
		return
	}
	res, err := h.svc.Refresh(r.Context(), secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.session(w, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	secret := refreshCookie(r)
	if secret == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.svc.Logout(r.Context(), secret); err != nil {
		h.writeError(w, r, err)
		return
	}
	deleteRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := h.svc.LogoutAll(r.Context(), p.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	deleteRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := fieldErrors{}
	notEmpty(f, "userId", q.Get("userId"), "User Id")
	notEmpty(f, "token", q.Get("token"), "Token")
	if err := f.err(); err != nil {
		h.writeError(w, r, err)
		return
	}

	// ConfirmEmail decodes the token itself.
	if err := h.svc.ConfirmEmail(r.Context(), q.Get("userId"), rawQueryValue(r.URL.RawQuery, "token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

// rawQueryValue returns the first value of key in rawQuery without
// percent-decoding it.
func rawQueryValue(rawQuery, key string) string {
	for _, pair := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if name, err := url.QueryUnescape(k); err == nil && name == key {
			return v
		}
	}
	return ""
}

func (h *Handler) resendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	var email emailBody
	if err := decode(w, r, &email); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ResendConfirmation(r.Context(), string(email)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Confirmation email resent"})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var email emailBody
	if err := decode(w, r, &email); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), string(email)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "If the address is registered, a reset email was sent"})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.UserID, req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	deleteRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

type userInfoResponse struct {
	UserName string   `json:"userName"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (h *Handler) userInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if chi.URLParam(r, "userId") != p.UserID {
		writeProblem(w, r, problem{Title: "Forbidden", Status: http.StatusForbidden})
		return
	}
	info, err := h.svc.GetCurrentUserInfo(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	roles := info.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, userInfoResponse{UserName: info.UserName, Email: info.Email, Roles: roles})
}

type claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (h *Handler) claims(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	out := []claim{
		{"sub", p.UserID},
		{"name", p.UserName},
		{"email", p.Email},
	}
	for _, role := range p.Roles {
		out = append(out, claim{"role", role})
	}
	out = append(out,
		claim{"jti", p.TokenID},
		claim{"exp", strconv.FormatInt(p.ExpiresAt.Unix(), 10)},
	)
	writeJSON(w, http.StatusOK, out)
}
