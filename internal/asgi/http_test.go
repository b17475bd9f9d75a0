package asgi

import (
	"context"
	"testing"

	"qactuar/internal/httpreq"
	"qactuar/internal/httpres"
)

func TestHTTPHandlerReceiveOnceThenDisconnect(t *testing.T) {
	req := httpreq.New("req-1")
	req.Feed([]byte("POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
	resp := httpres.New()
	h := NewHTTPHandler(req, resp, "http", Addr{Host: "localhost", Port: 8000})

	msg, err := h.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Type != HTTPRequest || string(msg.Body) != "hello" || msg.MoreBody {
		t.Fatalf("first Receive = %+v, want http.request/hello/false", msg)
	}

	msg, err = h.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Type != HTTPDisconnect {
		t.Fatalf("second Receive = %+v, want http.disconnect", msg)
	}
}

func TestHTTPHandlerReceiveClosingAlwaysDisconnects(t *testing.T) {
	req := httpreq.New("req-2")
	req.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
	resp := httpres.New()
	h := NewHTTPHandler(req, resp, "http", Addr{})
	h.Closing = true

	msg, _ := h.Receive(context.Background())
	if msg.Type != HTTPDisconnect {
		t.Fatalf("Receive while Closing = %+v, want http.disconnect", msg)
	}
}

func TestHTTPHandlerSendRecordsStatusAndHeaders(t *testing.T) {
	req := httpreq.New("req-3")
	req.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
	resp := httpres.New()
	h := NewHTTPHandler(req, resp, "http", Addr{})

	ctx := context.Background()
	_ = h.Send(ctx, Message{
		Type:    HTTPResponseStart,
		Status:  201,
		Headers: [][2]string{{"Content-Type", "application/json"}},
	})
	_ = h.Send(ctx, Message{Type: HTTPResponseBody, Body: []byte("ok")})

	if resp.Status != "201" {
		t.Fatalf("Status = %q, want 201", resp.Status)
	}
	if len(resp.Headers) != 1 || string(resp.Headers[0].Value) != "application/json" {
		t.Fatalf("Headers = %+v, want Content-Type: application/json", resp.Headers)
	}
	if string(resp.Body.Read()) != "ok" {
		t.Fatalf("Body = %q, want ok", resp.Body.Read())
	}
}

func TestHTTPHandlerCreateScopeFields(t *testing.T) {
	req := httpreq.New("req-4")
	req.Feed([]byte("GET /foo?x=1 HTTP/1.1\r\nHost: h\r\n\r\n"))
	resp := httpres.New()
	h := NewHTTPHandler(req, resp, "https", Addr{Host: "srv", Port: 443})

	scope := h.CreateScope(Addr{Host: "1.2.3.4", Port: 5555})
	if scope.Type != ScopeHTTP {
		t.Fatalf("Type = %v, want http", scope.Type)
	}
	if scope.Scheme != "https" {
		t.Fatalf("Scheme = %q, want https", scope.Scheme)
	}
	if scope.Path != "/foo" || string(scope.QueryString) != "x=1" {
		t.Fatalf("Path/QueryString = %q/%q", scope.Path, scope.QueryString)
	}
	if scope.Client.Host != "1.2.3.4" || scope.Client.Port != 5555 {
		t.Fatalf("Client = %+v", scope.Client)
	}
	if scope.Server.Host != "srv" || scope.Server.Port != 443 {
		t.Fatalf("Server = %+v", scope.Server)
	}
}
