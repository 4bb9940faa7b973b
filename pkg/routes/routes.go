// Package routes declares HTTP endpoints as data and registers them on a
// net/http ServeMux using method-qualified patterns.
package routes

import (
	"net/http"
	"slices"
)

// Route binds an HTTP method and a pattern relative to its Group.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group shares a path prefix across its routes and child groups.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route in groups to mux. Conflicting patterns panic,
// as with ServeMux.HandleFunc.
func Register(mux *http.ServeMux, groups ...Group) {
	walk(groups, func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, h)
	})
}

// Patterns lists the full "METHOD /path" patterns of groups in sorted order.
func Patterns(groups ...Group) []string {
	var out []string
	walk(groups, func(pattern string, _ http.HandlerFunc) {
		out = append(out, pattern)
	})
	slices.Sort(out)
	return out
}

func walk(groups []Group, visit func(pattern string, h http.HandlerFunc)) {
	for _, g := range groups {
		walkGroup("", g, visit)
	}
}

func walkGroup(parent string, g Group, visit func(string, http.HandlerFunc)) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		visit(r.Method+" "+prefix+r.Pattern, r.Handler)
	}
	for _, child := range g.Children {
		walkGroup(prefix, child, visit)
	}
}
