package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/job-tracker/internal/ingestion"
	"github.com/jonathan/job-tracker/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	var fieldErrs validator.ValidationErrors
	var upstreamErr *types.UpstreamError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &fieldErrs), errors.Is(err, ingestion.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
