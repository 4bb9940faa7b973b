package artifacts

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/query"
	"github.com/kavlartius217/meditrust/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "artifacts", "a").
	Project("id", "ID").
	Project("scope", "Scope").
	Project("name", "Name").
	Project("stage", "Stage").
	Project("version", "Version").
	Project("content", "Content").
	Project("created_at", "CreatedAt")

var defaultSort = []query.SortField{
	{Field: "CreatedAt", Descending: true},
	{Field: "Version", Descending: true},
}

// Filters narrows List results. Nil fields are ignored.
type Filters struct {
	Scope *uuid.UUID `json:"scope,omitempty"`
	Name  *string    `json:"name,omitempty"`
	Stage *string    `json:"stage,omitempty"`
}

// Apply adds the filter conditions to b.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Scope", f.Scope).
		WhereEquals("Name", f.Name).
		WhereEquals("Stage", f.Stage)
}

func (f Filters) match(a Artifact) bool {
	if f.Scope != nil && a.Scope != *f.Scope {
		return false
	}
	if f.Name != nil && a.Name != *f.Name {
		return false
	}
	if f.Stage != nil && a.Stage != *f.Stage {
		return false
	}
	return true
}

// FiltersFromQuery reads scope, name and stage query parameters.
// An unparseable scope is ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if s := values.Get("scope"); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			f.Scope = &id
		}
	}
	if n := values.Get("name"); n != "" {
		f.Name = &n
	}
	if s := values.Get("stage"); s != "" {
		f.Stage = &s
	}
	return f
}

func matchesSearch(a Artifact, search *string) bool {
	if search == nil || *search == "" {
		return true
	}
	needle := strings.ToLower(*search)
	return strings.Contains(strings.ToLower(a.Name), needle) ||
		strings.Contains(strings.ToLower(a.Content), needle)
}

func scanArtifact(s repository.Scanner) (Artifact, error) {
	var a Artifact
	err := s.Scan(
		&a.ID,
		&a.Scope,
		&a.Name,
		&a.Stage,
		&a.Version,
		&a.Content,
		&a.CreatedAt,
	)
	return a, err
}
