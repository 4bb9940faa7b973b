package pagination_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/query"
)

var cfg = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_PAGE_DEFAULT", "10")

	var c pagination.Config
	require.NoError(t, c.Finalize(&pagination.ConfigEnv{DefaultPageSize: "TEST_PAGE_DEFAULT"}))
	assert.Equal(t, 10, c.DefaultPageSize)
	assert.Equal(t, 100, c.MaxPageSize)

	bad := pagination.Config{DefaultPageSize: 200, MaxPageSize: 50}
	assert.Error(t, bad.Finalize(nil))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       pagination.PageRequest
		page     int
		pageSize int
	}{
		{"zero values", pagination.PageRequest{}, 1, 20},
		{"clamped size", pagination.PageRequest{Page: 2, PageSize: 500}, 2, 100},
		{"valid", pagination.PageRequest{Page: 3, PageSize: 5}, 3, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.in
			req.Normalize(cfg)
			assert.Equal(t, tt.page, req.Page)
			assert.Equal(t, tt.pageSize, req.PageSize)
		})
	}
}

func TestPageRequestFromQuery(t *testing.T) {
	values := url.Values{}
	values.Set("page", "2")
	values.Set("page_size", "10")
	values.Set("search", "hb")
	values.Set("sort", "-Version")

	req := pagination.PageRequestFromQuery(values, cfg)
	assert.Equal(t, 2, req.Page)
	assert.Equal(t, 10, req.PageSize)
	assert.Equal(t, 10, req.Offset())
	require.NotNil(t, req.Search)
	assert.Equal(t, "hb", *req.Search)
	assert.Equal(t, []query.SortField{{Field: "Version", Descending: true}}, req.Sort)
}

func TestNewPageResult(t *testing.T) {
	r := pagination.NewPageResult[int](nil, 0, 1, 20)
	assert.Equal(t, []int{}, r.Data)
	assert.Equal(t, 1, r.TotalPages)

	r = pagination.NewPageResult([]int{1, 2}, 41, 1, 20)
	assert.Equal(t, 3, r.TotalPages)
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := pagination.Slice(items, pagination.PageRequest{Page: 2, PageSize: 2})
	assert.Equal(t, []int{3, 4}, page.Data)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)

	past := pagination.Slice(items, pagination.PageRequest{Page: 9, PageSize: 2})
	assert.Empty(t, past.Data)
}
