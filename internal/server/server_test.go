package server

import (
	"context"
	"testing"

	"qactuar/internal/appregistry"
	"qactuar/internal/asgi"
	"qactuar/internal/config"
)

func init() {
	appregistry.Register("server_test.echo", asgi.AppFunc(
		func(ctx context.Context, scope asgi.Scope, recv asgi.Receive, send asgi.Send) error {
			return nil
		}))
}

func TestNewRejectsUnregisteredApp(t *testing.T) {
	cfg := config.Default()
	cfg.Apps = map[string]string{"/": "server_test.nonexistent"}

	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("New() with unregistered app = nil error, want error")
	}
}

func TestNewRejectsEmptyAppTable(t *testing.T) {
	cfg := config.Default()
	cfg.Apps = map[string]string{}

	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("New() with no apps = nil error, want error")
	}
}

func TestNewBuildsRouterFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "qactuar-test-host"
	cfg.Apps = map[string]string{"/": "server_test.echo"}

	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, ok := s.Router.Match("/anything"); !ok {
		t.Fatalf("Router did not register the configured root app")
	}
	if s.Pipeline.Server.Host != "qactuar-test-host" {
		t.Fatalf("Pipeline.Server.Host = %q, want qactuar-test-host", s.Pipeline.Server.Host)
	}
}

func TestFQDNOfFallsBackToHostnameForWildcardHost(t *testing.T) {
	name, err := fqdnOf("0.0.0.0")
	if err != nil {
		t.Fatalf("fqdnOf: %v", err)
	}
	if name == "" {
		t.Fatalf("fqdnOf(0.0.0.0) = empty, want a hostname")
	}
}

func TestFQDNOfReturnsExplicitHost(t *testing.T) {
	name, err := fqdnOf("example.test")
	if err != nil {
		t.Fatalf("fqdnOf: %v", err)
	}
	if name != "example.test" {
		t.Fatalf("fqdnOf(example.test) = %q, want example.test", name)
	}
}
