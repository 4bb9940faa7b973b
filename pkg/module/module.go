// Package module mounts self-contained HTTP sub-applications under
// single-segment path prefixes such as "/api".
package module

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kavlartius217/meditrust/pkg/middleware"
)

// Module serves an inner handler under a prefix. The prefix is removed
// from the request path before the inner handler and the module's own
// middleware see the request.
type Module struct {
	prefix     string
	inner      http.Handler
	middleware middleware.System
	handler    http.Handler
}

// New panics unless prefix is a single segment starting with "/".
func New(prefix string, inner http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{
		prefix:     prefix,
		inner:      inner,
		middleware: middleware.New(),
		handler:    inner,
	}
}

func (m *Module) Prefix() string { return m.prefix }

// Handler returns the inner handler wrapped in the module middleware.
func (m *Module) Handler() http.Handler { return m.handler }

// Use appends mw to the stack. Middleware registered first runs outermost.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
	m.handler = m.middleware.Apply(m.inner)
}

// Serve dispatches req with the module prefix stripped.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.handler.ServeHTTP(w, strip(req, m.prefix))
}

func strip(req *http.Request, prefix string) *http.Request {
	path := strings.TrimPrefix(req.URL.Path, prefix)
	if path == "" {
		path = "/"
	}

	out := req.Clone(req.Context())
	out.URL = &url.URL{}
	*out.URL = *req.URL
	out.URL.Path = path
	out.URL.RawPath = ""
	return out
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case !strings.HasPrefix(prefix, "/"):
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.Count(prefix, "/") != 1:
		return fmt.Errorf("module prefix must be a single segment: %s", prefix)
	}
	return nil
}

// Router sends each request to the module mounted on its first path
// segment. Anything else falls through to a plain ServeMux for
// process-level endpoints like /healthz and /metrics.
type Router struct {
	modules map[string]*Module
	native  *http.ServeMux
}

func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// HandleNative registers fn on the fallback mux.
func (r *Router) HandleNative(pattern string, fn http.HandlerFunc) {
	r.native.HandleFunc(pattern, fn)
}

// Handle registers h on the fallback mux.
func (r *Router) Handle(pattern string, h http.Handler) {
	r.native.Handle(pattern, h)
}

// Mount replaces any module previously mounted on m's prefix.
func (r *Router) Mount(m *Module) {
	r.modules[m.prefix] = m
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
		req.URL.Path = path
	}

	if m, ok := r.modules[firstSegment(path)]; ok {
		m.Serve(w, req)
		return
	}
	r.native.ServeHTTP(w, req)
}

func firstSegment(path string) string {
	rest, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return "/" + rest
}
