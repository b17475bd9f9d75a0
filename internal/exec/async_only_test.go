package exec

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"qactuar/internal/asgi"
)

func TestRunAsyncOnlySpawnsGoroutinePerConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	tcpLn := ln.(*net.TCPListener)

	var mu sync.Mutex
	handled := 0
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- RunAsyncOnly(ctx, tcpLn, func(ctx context.Context, conn net.Conn, client asgi.Addr) {
			mu.Lock()
			handled++
			mu.Unlock()
			conn.Close()
		})
	}()

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", tcpLn.Addr().String())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		conn.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := handled
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handled = %d, want 3", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	ln.Close()
	<-done
}
