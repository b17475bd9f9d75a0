// Package router implements the longest-prefix app router (spec §4.4).
package router

import (
	"sort"
	"strings"

	"qactuar/internal/asgi"
)

type entry struct {
	prefix string
	app    asgi.App
}

// Router holds the route prefix -> app table, pre-sorted by descending
// prefix length at registration time (spec §9's suggested optimization).
type Router struct {
	entries []entry
}

// New returns an empty Router.
func New() *Router {
	return &Router{}
}

// Add registers app at prefix, re-sorting the table by descending prefix
// length so Match can scan it in order.
func (r *Router) Add(prefix string, app asgi.App) {
	r.entries = append(r.entries, entry{prefix: prefix, app: app})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].prefix) > len(r.entries[j].prefix)
	})
}

// Match scans the table ordered by descending prefix length (with "/"
// last, since it is always shortest or tied-shortest) and returns the
// first app whose prefix matches path, along with the scoped path (path
// with a matched non-root prefix stripped once). When no prefix matches,
// the "/" app, if registered, is returned with path unchanged; ok is false
// only when no prefix matched and no "/" app is registered — the caller
// replies 404 (spec §4.4).
func (r *Router) Match(path string) (app asgi.App, scopedPath string, ok bool) {
	var root asgi.App
	haveRoot := false

	for _, e := range r.entries {
		if e.prefix == "/" {
			if !haveRoot {
				root, haveRoot = e.app, true
			}
			if path == "/" {
				return e.app, path, true
			}
			continue
		}
		if strings.HasPrefix(path, e.prefix) {
			return e.app, strings.TrimPrefix(path, e.prefix), true
		}
	}
	// No prefix matched (and "/" didn't match exactly): "/" is the
	// fallback for any other path, per spec §4.4 ("the default app at
	// '/' is the fallback").
	if haveRoot {
		return root, path, true
	}
	return nil, "", false
}
