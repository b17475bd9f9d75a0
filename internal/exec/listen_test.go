package exec

import (
	"context"
	"testing"
)

func TestListenBindsAndAccepts(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	if ln.Addr().String() == "" {
		t.Fatalf("Addr() is empty")
	}
}
