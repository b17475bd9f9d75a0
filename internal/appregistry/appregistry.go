// Package appregistry is the compile-time analogue of the original
// implementation's dynamic "module:symbol" app lookup (spec §6, §9:
// "Go has no equivalent of runtime importlib... a compile-time registry,
// in the style of database/sql.Register, takes its place"). An app
// package calls Register in its own init(); the config's APPS map is
// then just a set of names the server looks up in this table.
package appregistry

import (
	"fmt"
	"sync"

	"qactuar/internal/asgi"
)

var (
	mu      sync.RWMutex
	apps    = map[string]asgi.App{}
	factory = map[string]func() asgi.App{}
)

// Register binds name to app, for direct use when a single shared
// instance suffices. Panics on a duplicate name, mirroring
// database/sql.Register's "called twice" panic — both are init()-time
// registrations where a collision is a build-time programming error.
func Register(name string, app asgi.App) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := apps[name]; exists {
		panic(fmt.Sprintf("appregistry: Register called twice for %q", name))
	}
	apps[name] = app
}

// RegisterFactory binds name to a constructor, called once per lookup, for
// apps that need a fresh instance per mount point.
func RegisterFactory(name string, f func() asgi.App) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factory[name]; exists {
		panic(fmt.Sprintf("appregistry: RegisterFactory called twice for %q", name))
	}
	factory[name] = f
}

// Lookup resolves name to an App, preferring a direct registration over a
// factory. ok is false if name was never registered (spec §6: an unknown
// app name is a startup-time configuration error).
func Lookup(name string) (app asgi.App, ok bool) {
	mu.RLock()
	defer mu.RUnlock()
	if a, exists := apps[name]; exists {
		return a, true
	}
	if f, exists := factory[name]; exists {
		return f(), true
	}
	return nil, false
}

// Names returns every registered name, direct and factory, for diagnostics.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(apps)+len(factory))
	for n := range apps {
		out = append(out, n)
	}
	for n := range factory {
		out = append(out, n)
	}
	return out
}
