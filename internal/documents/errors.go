package documents

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicate       = errors.New("document already exists")
	ErrFileTooLarge    = errors.New("file exceeds maximum upload size")
	ErrInvalidFile     = errors.New("invalid file")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrNoText          = errors.New("document contains no extractable text")
)

// SourceLoadFailure reports a report that could not be read or decoded.
// No workflow stage runs for a report that fails to load.
type SourceLoadFailure struct {
	Source string
	Cause  error
}

func (e *SourceLoadFailure) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Cause)
}

func (e *SourceLoadFailure) Unwrap() error { return e.Cause }

func loadFailure(source string, cause error) error {
	return &SourceLoadFailure{Source: source, Cause: cause}
}

// MapHTTPStatus maps document domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidFile):
		return http.StatusBadRequest
	}

	var slf *SourceLoadFailure
	if errors.As(err, &slf) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
