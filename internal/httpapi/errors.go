package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/joelkehle/consultkit/internal/appmap"
	"github.com/joelkehle/consultkit/internal/brand"
	"github.com/joelkehle/consultkit/internal/cleanup"
	"github.com/joelkehle/consultkit/internal/docextract"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/painpoints"
	"github.com/joelkehle/consultkit/internal/store"
	"github.com/joelkehle/consultkit/internal/tabular"
)

const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeTooLarge     = "too_large"
	CodeRateLimited  = "rate_limited"
	CodeUnavailable  = "unavailable"
	CodeTimeout      = "timeout"
	CodeInternal     = "internal"
)

type Error struct {
	Code       string
	Message    string
	Transient  bool
	RetryAfter int
	Status     int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(code, message string) *Error {
	transient := code == CodeRateLimited || code == CodeUnavailable || code == CodeTimeout || code == CodeInternal
	return &Error{Code: code, Message: message, Transient: transient, Status: statusForCode(code)}
}

func validationf(format string, args ...any) *Error {
	return newError(CodeValidation, fmt.Sprintf(format, args...))
}

// classify maps domain errors onto API errors. Unknown errors are internal.
func classify(err error) *Error {
	var (
		apiErr     *Error
		maxErr     *http.MaxBytesError
		missingCol *tabular.MissingColumnError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &maxErr):
		return newError(CodeTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.As(err, &missingCol):
		return newError(CodeValidation, missingCol.Error())
	case errors.Is(err, store.ErrNotFound):
		return newError(CodeNotFound, err.Error())
	case errors.Is(err, llm.ErrNotConfigured):
		return newError(CodeUnavailable, "language model is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeTimeout, "request timed out")
	case errors.Is(err, appmap.ErrEmptyCatalogue),
		errors.Is(err, painpoints.ErrEmptyText),
		errors.Is(err, painpoints.ErrNoPoints),
		errors.Is(err, painpoints.ErrNoCapabilities),
		errors.Is(err, painpoints.ErrInvalidCapability),
		errors.Is(err, docextract.ErrNoText),
		errors.Is(err, docextract.ErrUnsupported),
		errors.Is(err, tabular.ErrEmpty),
		errors.Is(err, cleanup.ErrInvalidInput),
		errors.Is(err, brand.ErrEmptyDocument):
		return newError(CodeValidation, err.Error())
	default:
		return newError(CodeInternal, err.Error())
	}
}

func writeError(w http.ResponseWriter, err error) {
	e := classify(err)
	payload := map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":      e.Code,
			"message":   e.Message,
			"transient": e.Transient,
		},
	}
	if e.RetryAfter > 0 {
		payload["error"].(map[string]any)["retry_after"] = e.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	writeJSON(w, e.Status, payload)
}
