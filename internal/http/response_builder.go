package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finboard/internal/auth"
	"finboard/internal/core"
	"finboard/internal/log"
)

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="finboard"`)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps err to a status and a client-safe message. Server errors
// are logged with the request logger and never echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err.Error(),
			log.FieldPath, r.URL.Path)
	}
	writeErrorMessage(w, status, msg)
}

func classifyError(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		switch {
		case errors.Is(reqErr.kind, errBodyTooLarge):
			return http.StatusRequestEntityTooLarge, reqErr.msg
		case errors.Is(reqErr.kind, errInvalidRequest):
			return http.StatusUnprocessableEntity, reqErr.msg
		default:
			return http.StatusBadRequest, reqErr.msg
		}
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, core.ErrInvalidPage):
		return http.StatusBadRequest, err.Error()
	case isValidationError(err):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidDate,
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrLongDescription,
		core.ErrEmptyCategory,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
