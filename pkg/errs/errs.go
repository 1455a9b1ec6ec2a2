package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks bad or missing required input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced conversation or message that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks a missing provider credential or similar setup fault.
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstream marks a failure of the generation provider.
	ErrUpstream = errors.New("upstream error")
)

// HTTPStatus maps an error from the taxonomy to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
