package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// Typed failures the dialog layer can map to user-facing messages. Raw
// transport errors never cross the package boundary.
var (
	ErrNotFound    = errors.New("registry: not found")
	ErrConflict    = errors.New("registry: conflict")
	ErrUnavailable = errors.New("registry: unavailable")
	ErrValidation  = errors.New("registry: validation failed")
)

// statusError maps an HTTP status to the failure taxonomy.
func statusError(status int, endpoint string) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, endpoint)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, endpoint)
	case status >= 500:
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, endpoint, status)
	default:
		return fmt.Errorf("%w: %s returned unexpected %d", ErrUnavailable, endpoint, status)
	}
}
