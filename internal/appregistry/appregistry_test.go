package appregistry

import (
	"context"
	"testing"

	"qactuar/internal/asgi"
)

func nopApp(ctx context.Context, scope asgi.Scope, recv asgi.Receive, send asgi.Send) error {
	return nil
}

func TestRegisterAndLookup(t *testing.T) {
	Register("test.direct.app", asgi.AppFunc(nopApp))

	app, ok := Lookup("test.direct.app")
	if !ok || app == nil {
		t.Fatalf("Lookup(%q) = %v, %v, want a registered app", "test.direct.app", app, ok)
	}
}

func TestRegisterFactoryCalledPerLookup(t *testing.T) {
	calls := 0
	RegisterFactory("test.factory.app", func() asgi.App {
		calls++
		return asgi.AppFunc(nopApp)
	})

	if _, ok := Lookup("test.factory.app"); !ok {
		t.Fatalf("Lookup did not find factory registration")
	}
	if _, ok := Lookup("test.factory.app"); !ok {
		t.Fatalf("Lookup did not find factory registration on second call")
	}
	if calls != 2 {
		t.Fatalf("factory called %d times, want 2", calls)
	}
}

func TestLookupUnknownNameNotOK(t *testing.T) {
	if _, ok := Lookup("test.nonexistent.app"); ok {
		t.Fatalf("Lookup of unregistered name = ok, want not found")
	}
}

func TestRegisterTwiceSameNamePanics(t *testing.T) {
	Register("test.duplicate.app", asgi.AppFunc(nopApp))

	defer func() {
		if recover() == nil {
			t.Fatalf("Register with duplicate name did not panic")
		}
	}()
	Register("test.duplicate.app", asgi.AppFunc(nopApp))
}
