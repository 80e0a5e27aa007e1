package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrJobNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrJobExists), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, generation.ErrInvalidRequest), errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrPersistence), errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, store.ErrJobNotFound), errors.Is(err, store.ErrNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrJobExists), errors.Is(err, store.ErrDuplicate):
		return "Job already exists"
	case errors.Is(err, generation.ErrInvalidRequest), errors.Is(err, store.ErrInvalidEntity):
		return "Invalid job request"
	case errors.Is(err, job.ErrPersistence), errors.Is(err, store.ErrUnavailable):
		return "Job store unavailable"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first failing field, e.g. "Invalid Prompt: too short".
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "alphanum":
		return "must be alphanumeric"
	case "oneof":
		return "invalid value"
	default:
		return strings.ReplaceAll(tag, "_", " ") + " check failed"
	}
}
