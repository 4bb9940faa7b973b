package artifacts

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound  = errors.New("artifact not found")
	ErrDuplicate = errors.New("artifact version already exists")
	ErrInvalid   = errors.New("invalid artifact")
)

// MapHTTPStatus maps artifact errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
