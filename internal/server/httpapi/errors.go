package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/QKhanh04/innerg-api/internal/common"
)

// problem is an RFC 7807 body.
type problem struct {
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

var kindStatus = []struct {
	kind   error
	status int
}{
	{common.ErrorValidation, http.StatusBadRequest},
	{common.ErrorBadRequest, http.StatusBadRequest},
	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrorConflict, http.StatusConflict},
	{common.ErrorExternalService, http.StatusServiceUnavailable},
	{common.ErrorConfiguration, http.StatusInternalServerError},
}

func statusFor(err error) int {
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeProblem(w http.ResponseWriter, r *http.Request, p problem) {
	p.Instance = r.URL.Path
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeError renders err as problem details. Client errors and external
// service failures carry their message; anything else becomes a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var appErr *common.AppError
	classified := errors.As(err, &appErr)

	switch {
	case status == http.StatusServiceUnavailable && classified:
		h.logger.Error(r.Context(), "dependency failed", "path", r.URL.Path, "error", err)
		writeProblem(w, r, problem{Title: "Application error", Status: status, Detail: appErr.Message})
	case status >= http.StatusInternalServerError || !classified:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeProblem(w, r, problem{
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
			Detail: "An unexpected error occurred",
		})
	case errors.Is(err, common.ErrorValidation):
		h.logger.Debug(r.Context(), "validation failed", "path", r.URL.Path, "errors", appErr.Fields)
		writeProblem(w, r, problem{Title: "Validation failed", Status: status, Errors: appErr.Fields})
	default:
		h.logger.Warn(r.Context(), "application error", "path", r.URL.Path, "status", status, "error", err)
		writeProblem(w, r, problem{Title: "Application error", Status: status, Detail: appErr.Message})
	}
}
