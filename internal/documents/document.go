// Package documents registers uploaded medical reports and extracts their
// plain text. The extracted text seeds the report field of a workflow.
package documents

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded report and its blob storage reference.
type Document struct {
	ID          uuid.UUID `json:"id"`
	Scope       uuid.UUID `json:"scope"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	PageCount   *int      `json:"page_count"`
	StorageKey  string    `json:"storage_key"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// CreateCommand carries the raw bytes of an uploaded report. PageCount is
// set by Parse for PDFs and stored as NULL otherwise.
type CreateCommand struct {
	Scope       uuid.UUID
	Data        []byte
	Filename    string
	ContentType string
	PageCount   *int
}

func (c CreateCommand) validate() error {
	if c.Scope == uuid.Nil {
		return fmt.Errorf("%w: scope required", ErrInvalidFile)
	}
	if len(c.Data) == 0 {
		return fmt.Errorf("%w: empty upload", ErrInvalidFile)
	}
	return nil
}

// StorageKey builds sessions/{scope}/report/{filename}.
func StorageKey(scope uuid.UUID, filename string) string {
	return fmt.Sprintf("sessions/%s/report/%s", scope, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "report"
	}
	return url.PathEscape(name)
}
