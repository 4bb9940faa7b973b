package documents

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/query"
	"github.com/kavlartius217/meditrust/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("id", "ID").
	Project("scope", "Scope").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("storage_key", "StorageKey").
	Project("uploaded_at", "UploadedAt")

var defaultSort = query.SortField{
	Field:      "UploadedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for document queries.
// Nil fields are ignored. Filename is a case-insensitive contains match.
type Filters struct {
	Scope       *uuid.UUID `json:"scope,omitempty"`
	Filename    *string    `json:"filename,omitempty"`
	ContentType *string    `json:"content_type,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Scope", f.Scope).
		WhereSearch(f.Filename, "Filename").
		WhereEquals("ContentType", f.ContentType)
}

func (f Filters) match(d Document) bool {
	if f.Scope != nil && d.Scope != *f.Scope {
		return false
	}
	if f.Filename != nil && !strings.Contains(strings.ToLower(d.Filename), strings.ToLower(*f.Filename)) {
		return false
	}
	if f.ContentType != nil && d.ContentType != *f.ContentType {
		return false
	}
	return true
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("scope"); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			f.Scope = &id
		}
	}

	if fn := values.Get("filename"); fn != "" {
		f.Filename = &fn
	}

	if ct := values.Get("content_type"); ct != "" {
		f.ContentType = &ct
	}

	return f
}

func scanDocument(s repository.Scanner) (Document, error) {
	var d Document
	err := s.Scan(
		&d.ID,
		&d.Scope,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&d.PageCount,
		&d.StorageKey,
		&d.UploadedAt,
	)
	return d, err
}
