package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kavlartius217/meditrust/pkg/routes"
)

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

func sessionsGroup() routes.Group {
	return routes.Group{
		Prefix: "/sessions",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: status(http.StatusCreated)},
			{Method: "GET", Pattern: "/{id}", Handler: status(http.StatusOK)},
		},
		Children: []routes.Group{{
			Prefix: "/{id}/turns",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: status(http.StatusAccepted)},
			},
		}},
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	routes.Register(mux, sessionsGroup())

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"create", "POST", "/sessions", http.StatusCreated},
		{"get", "GET", "/sessions/42", http.StatusOK},
		{"nested child", "GET", "/sessions/42/turns", http.StatusAccepted},
		{"method not allowed", "DELETE", "/sessions/42", http.StatusMethodNotAllowed},
		{"unknown", "GET", "/documents", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPatterns(t *testing.T) {
	got := routes.Patterns(sessionsGroup())
	assert.Equal(t, []string{
		"GET /sessions/{id}",
		"GET /sessions/{id}/turns",
		"POST /sessions",
	}, got)
}

func TestRegisterConflictPanics(t *testing.T) {
	g := routes.Group{Routes: []routes.Route{
		{Method: "GET", Pattern: "/x", Handler: status(http.StatusOK)},
		{Method: "GET", Pattern: "/x", Handler: status(http.StatusOK)},
	}}
	assert.Panics(t, func() { routes.Register(http.NewServeMux(), g) })
}
