package artifacts_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/internal/artifacts"
	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/routes"
)

var pageCfg = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func newStore() artifacts.System {
	return artifacts.NewMemory(slog.New(slog.NewTextHandler(io.Discard, nil)), pageCfg)
}

func put(t *testing.T, s artifacts.System, scope uuid.UUID, name, content string) *artifacts.Artifact {
	t.Helper()
	a, err := s.Put(context.Background(), artifacts.PutCommand{
		Scope: scope, Name: name, Stage: name, Content: content,
	})
	require.NoError(t, err)
	return a
}

func TestPutAppendsVersions(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	scope := uuid.New()

	first := put(t, s, scope, artifacts.Extraction, "Hb 9 g/dL")
	second := put(t, s, scope, artifacts.Extraction, "Hb 9 g/dL (rerun)")

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "extraction@v2", second.Key())

	latest, err := s.Latest(ctx, scope, artifacts.Extraction)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	v1, err := s.Version(ctx, scope, artifacts.Extraction, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hb 9 g/dL", v1.Content)

	other := put(t, s, uuid.New(), artifacts.Extraction, "other session")
	assert.Equal(t, 1, other.Version, "versions are per scope")
}

func TestVersionsNeverShrink(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	scope := uuid.New()

	var seen []artifacts.Artifact
	for i := range 5 {
		put(t, s, scope, artifacts.Explanation, fmt.Sprintf("run %d", i))

		vs, err := s.Versions(ctx, scope, artifacts.Explanation)
		require.NoError(t, err)
		require.Len(t, vs, i+1)
		if len(seen) > 0 {
			assert.Equal(t, seen, vs[:len(seen)], "earlier versions unchanged")
		}
		seen = vs
	}
}

func TestConcurrentPutsGetDistinctVersions(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	scope := uuid.New()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := s.Put(ctx, artifacts.PutCommand{Scope: scope, Name: artifacts.Doctors, Content: "x"})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	vs, err := s.Versions(ctx, scope, artifacts.Doctors)
	require.NoError(t, err)
	require.Len(t, vs, 20)
	for i, a := range vs {
		assert.Equal(t, i+1, a.Version)
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.Latest(ctx, uuid.New(), artifacts.Doctors)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, artifacts.MapHTTPStatus(err))

	_, err = s.Version(ctx, uuid.New(), artifacts.Doctors, 0)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)

	_, err = s.Put(ctx, artifacts.PutCommand{Name: artifacts.Doctors})
	assert.ErrorIs(t, err, artifacts.ErrInvalid)
	assert.Equal(t, http.StatusBadRequest, artifacts.MapHTTPStatus(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	scope := uuid.New()
	put(t, s, scope, artifacts.Extraction, "Hb 9 g/dL")
	put(t, s, scope, artifacts.Abnormalities, "Low haemoglobin")
	put(t, s, uuid.New(), artifacts.Extraction, "elsewhere")

	res, err := s.List(ctx, pagination.PageRequest{}, artifacts.Filters{Scope: &scope})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	search := "haemoglobin"
	res, err = s.List(ctx, pagination.PageRequest{Search: &search}, artifacts.Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, artifacts.Abnormalities, res.Data[0].Name)
}

func setupMux(h *artifacts.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())
	return mux
}

func TestHandler(t *testing.T) {
	s := newStore()
	scope := uuid.New()
	put(t, s, scope, artifacts.Extraction, "v1")
	put(t, s, scope, artifacts.Extraction, "v2")
	mux := setupMux(s.Handler())

	tests := []struct {
		name   string
		path   string
		status int
		check  func(t *testing.T, body []byte)
	}{
		{
			"latest", fmt.Sprintf("/artifacts/%s/extraction", scope), http.StatusOK,
			func(t *testing.T, body []byte) {
				var a artifacts.Artifact
				require.NoError(t, json.Unmarshal(body, &a))
				assert.Equal(t, 2, a.Version)
			},
		},
		{
			"versions", fmt.Sprintf("/artifacts/%s/extraction/versions", scope), http.StatusOK,
			func(t *testing.T, body []byte) {
				var vs []artifacts.Artifact
				require.NoError(t, json.Unmarshal(body, &vs))
				assert.Len(t, vs, 2)
			},
		},
		{
			"single version", fmt.Sprintf("/artifacts/%s/extraction/versions/1", scope), http.StatusOK,
			func(t *testing.T, body []byte) {
				var a artifacts.Artifact
				require.NoError(t, json.Unmarshal(body, &a))
				assert.Equal(t, "v1", a.Content)
			},
		},
		{"list", "/artifacts?name=extraction", http.StatusOK, nil},
		{"bad scope", "/artifacts/nope/extraction", http.StatusBadRequest, nil},
		{"bad version", fmt.Sprintf("/artifacts/%s/extraction/versions/x", scope), http.StatusBadRequest, nil},
		{"missing", fmt.Sprintf("/artifacts/%s/doctors", scope), http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.check != nil {
				tt.check(t, rec.Body.Bytes())
			}
		})
	}
}
