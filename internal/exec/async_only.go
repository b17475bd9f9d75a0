package exec

import (
	"context"
	"net"

	"qactuar/internal/asgi"
)

// RunAsyncOnly is the async-only model (spec §4.11.3): a single process,
// single accept loop, one goroutine per accepted connection. ctx
// cancellation is observed by closing the listener out from under a
// blocked Accept, rather than polling — the Go analogue of the original's
// blocking accept living on an executor that shutdown can interrupt
// directly.
func RunAsyncOnly(ctx context.Context, ln *net.TCPListener, handler ConnHandler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}

		client := asgi.Addr{}
		if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			client = asgi.Addr{Host: tcp.IP.String(), Port: tcp.Port}
		}
		go handler(ctx, conn, client)
	}
}
