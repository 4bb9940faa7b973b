package sessions

import (
	"errors"
	"net/http"

	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/documents"
	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/internal/workflow"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrSessionBusy  = errors.New("session is running another transition")
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	ErrNotReady     = errors.New("workflow has not reached a terminal state")
	ErrAborted      = errors.New("session workflow was aborted")
	ErrNotIndexed   = errors.New("session artifacts are not indexed")
)

// MapHTTPStatus maps session and workflow errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	var (
		stageErr  *workflow.StageFailure
		configErr *workflow.ConfigurationFailure
		indexErr  *index.IndexFailure
		loadErr   *documents.SourceLoadFailure
	)

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionBusy),
		errors.Is(err, ErrInvalidPhase),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrAborted),
		errors.Is(err, ErrNotIndexed),
		errors.Is(err, workflow.ErrDecisionLocked),
		errors.Is(err, workflow.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidDecision),
		errors.Is(err, workflow.ErrMissingReport),
		errors.Is(err, conversation.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.As(err, &loadErr):
		return documents.MapHTTPStatus(err)
	case errors.As(err, &configErr):
		return http.StatusInternalServerError
	case errors.As(err, &stageErr):
		return http.StatusBadGateway
	case errors.As(err, &indexErr):
		return http.StatusServiceUnavailable
	}
	return documents.MapHTTPStatus(err)
}
