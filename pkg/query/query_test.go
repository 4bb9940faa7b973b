package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kavlartius217/meditrust/pkg/query"
)

func testProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "artifacts", "a").
		Project("id", "ID").
		Project("name", "Name").
		Project("version", "Version").
		Project("created_at", "CreatedAt")
}

func ptr[T any](v T) *T { return &v }

func TestProjectionMap(t *testing.T) {
	p := testProjection()

	assert.Equal(t, "public.artifacts a", p.From())
	assert.Equal(t, "a.id, a.name, a.version, a.created_at", p.Columns())
	assert.Equal(t, "a.name", p.Column("Name"))
	assert.Equal(t, "unknown", p.Column("unknown"))
	assert.True(t, p.Has("Version"))
	assert.False(t, p.Has("Content"))
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []query.SortField
	}{
		{"empty", "", nil},
		{"single asc", "Name", []query.SortField{{Field: "Name"}}},
		{"single desc", "-Version", []query.SortField{{Field: "Version", Descending: true}}},
		{
			"mixed with blanks",
			"Name, ,-CreatedAt",
			[]query.SortField{{Field: "Name"}, {Field: "CreatedAt", Descending: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, query.ParseSortFields(tt.input))
		})
	}
}

func TestBuilder(t *testing.T) {
	defaultSort := query.SortField{Field: "Version", Descending: true}

	t.Run("no conditions", func(t *testing.T) {
		sql, args := query.NewBuilder(testProjection(), defaultSort).Build()
		assert.Equal(t, "SELECT a.id, a.name, a.version, a.created_at FROM public.artifacts a ORDER BY a.version DESC", sql)
		assert.Empty(t, args)
	})

	t.Run("nil values skipped", func(t *testing.T) {
		var name *string
		sql, args := query.NewBuilder(testProjection()).WhereEquals("Name", name).BuildCount()
		assert.Equal(t, "SELECT COUNT(*) FROM public.artifacts a", sql)
		assert.Empty(t, args)
	})

	t.Run("placeholders numbered in order", func(t *testing.T) {
		sql, args := query.NewBuilder(testProjection()).
			WhereEquals("Name", ptr("extraction")).
			WhereSearch(ptr("hb"), "Name", "ID").
			WhereEquals("Version", 2).
			BuildCount()

		assert.Equal(t,
			"SELECT COUNT(*) FROM public.artifacts a WHERE a.name = $1 AND (a.name ILIKE $2 OR a.id ILIKE $3) AND a.version = $4",
			sql,
		)
		assert.Equal(t, []any{ptr("extraction"), "%hb%", "%hb%", 2}, args)
	})

	t.Run("page with explicit sort", func(t *testing.T) {
		sql, _ := query.NewBuilder(testProjection(), defaultSort).
			OrderByFields([]query.SortField{{Field: "Name"}, {Field: "Bogus"}}).
			BuildPage(3, 10)

		assert.Equal(t,
			"SELECT a.id, a.name, a.version, a.created_at FROM public.artifacts a ORDER BY a.name ASC LIMIT 10 OFFSET 20",
			sql,
		)
	})
}
