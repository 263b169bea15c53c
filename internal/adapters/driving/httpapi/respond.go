package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// Error codes in the error envelope.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimited    = "RATE_LIMITED"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL"
)

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PageMeta describes a slice of a larger result.
type PageMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respond(w, r, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// respondErr maps a service error onto a status and code.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrInvalidID):
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		respondError(w, r, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrRerankUnavailable),
		errors.Is(err, domain.ErrVectorIndexUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	default:
		logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
