package pipeline

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"qactuar/internal/asgi"
	"qactuar/internal/router"
	"qactuar/internal/wsframe"
)

func echoApp(ctx context.Context, scope asgi.Scope, recv asgi.Receive, send asgi.Send) error {
	msg, err := recv(ctx)
	if err != nil {
		return err
	}
	if msg.Type != asgi.HTTPRequest {
		return nil
	}
	if err := send(ctx, asgi.Message{Type: asgi.HTTPResponseStart, Status: 200, Headers: [][2]string{{"Content-Type", "text/plain"}}}); err != nil {
		return err
	}
	return send(ctx, asgi.Message{Type: asgi.HTTPResponseBody, Body: append([]byte("echo:"), msg.Body...)})
}

func TestPipelineHandleHTTPRunsAppAndRespondsOnce(t *testing.T) {
	rt := router.New()
	rt.Add("/", asgi.AppFunc(echoApp))
	p := New(rt, nil)

	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		p.Handle(context.Background(), serverConn, asgi.Addr{Host: "127.0.0.1", Port: 9000})
		close(done)
	}()

	_, err := clientConn.Write([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
	if err != nil {
		t.Fatalf("write request: %v", err)
	}

	buf := make([]byte, 4096)
	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp := string(buf[:n])

	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("response status line = %q, want 200 prefix", resp)
	}
	if !strings.Contains(resp, "echo:hello") {
		t.Fatalf("response body missing echo, got %q", resp)
	}
	if !strings.Contains(resp, "x-request-id:") {
		t.Fatalf("response missing x-request-id header, got %q", resp)
	}

	clientConn.Close()
	<-done
}

func TestPipelineHandleHTTPNoAppMatched404(t *testing.T) {
	rt := router.New() // empty: no "/" registered
	p := New(rt, nil)

	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		p.Handle(context.Background(), serverConn, asgi.Addr{})
		close(done)
	}()

	_, _ = clientConn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	buf := make([]byte, 4096)
	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp := string(buf[:n])
	if !strings.HasPrefix(resp, "HTTP/1.1 404") {
		t.Fatalf("response status line = %q, want 404 prefix", resp)
	}

	clientConn.Close()
	<-done
}

func TestPipelineHandleEmptyRequestClosesSilently(t *testing.T) {
	rt := router.New()
	rt.Add("/", asgi.AppFunc(echoApp))
	p := New(rt, nil)
	p.RequestTimeout = 10 * time.Millisecond

	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		p.Handle(context.Background(), serverConn, asgi.Addr{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Handle did not return for a connection with no bytes")
	}
	clientConn.Close()
}

func websocketApp(ctx context.Context, scope asgi.Scope, recv asgi.Receive, send asgi.Send) error {
	msg, err := recv(ctx)
	if err != nil {
		return err
	}
	switch msg.Type {
	case asgi.WebSocketConnect:
		return send(ctx, asgi.Message{Type: asgi.WebSocketAccept})
	case asgi.WebSocketReceive:
		return send(ctx, asgi.Message{Type: asgi.WebSocketSend, Text: msg.Text})
	}
	return nil
}

func TestPipelineWebSocketHandshakeAndEcho(t *testing.T) {
	rt := router.New()
	rt.Add("/", asgi.AppFunc(websocketApp))
	p := New(rt, nil)

	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		p.Handle(context.Background(), serverConn, asgi.Addr{})
		close(done)
	}()

	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.test\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	buf := make([]byte, 4096)
	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read handshake response: %v", err)
	}
	resp := string(buf[:n])
	if !strings.HasPrefix(resp, "HTTP/1.1 101") {
		t.Fatalf("handshake status = %q, want 101 prefix", resp)
	}
	wantAccept := "Sec-WebSocket-Accept: " + acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	if !strings.Contains(resp, wantAccept) {
		t.Fatalf("handshake response = %q, want %q", resp, wantAccept)
	}

	mask := [4]byte{1, 2, 3, 4}
	frame := wsframe.EncodeMasked(wsframe.Text, []byte("hi"), mask)[0]
	if _, err := clientConn.Write(frame); err != nil {
		t.Fatalf("write data frame: %v", err)
	}

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read echo frame: %v", err)
	}
	decoded, consumed, ok, err := wsframe.Decode(buf[:n], false)
	if err != nil || !ok || consumed != n {
		t.Fatalf("decode echo frame: frame=%+v consumed=%d ok=%v err=%v", decoded, consumed, ok, err)
	}
	if decoded.Opcode != wsframe.Text || string(decoded.Payload) != "hi" {
		t.Fatalf("echo frame = %+v, want text/hi", decoded)
	}

	closeFrame := wsframe.EncodeMasked(wsframe.Close, closePayload(1000), mask)[0]
	if _, err := clientConn.Write(closeFrame); err != nil {
		t.Fatalf("write close frame: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Handle did not return after client close frame")
	}
	clientConn.Close()
}
