package httpres

import (
	"bytes"
	"strings"
	"testing"
)

func TestToHTTPIncludesStatusDateServer(t *testing.T) {
	r := New()
	r.AddHeader("Content-Type", "text/plain")
	r.Body.Write([]byte("hi"))

	out := string(r.ToHTTP())
	if !strings.HasPrefix(out, "HTTP/1.1 200\r\n") {
		t.Fatalf("status line wrong: %q", out)
	}
	if !strings.Contains(out, "Date: ") {
		t.Fatalf("missing Date header: %q", out)
	}
	if !strings.Contains(out, "Server: "+ServerBanner) {
		t.Fatalf("missing Server header: %q", out)
	}
	if !strings.Contains(out, "Content-Type: text/plain\r\n") {
		t.Fatalf("missing app header: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhi") {
		t.Fatalf("body not appended after blank line: %q", out)
	}
}

func TestClearResetsStatusHeadersBody(t *testing.T) {
	r := New()
	r.Status = "404"
	r.AddHeader("X-Foo", "1")
	r.Body.Write([]byte("x"))

	r.Clear()

	if r.Status != "200" {
		t.Fatalf("Status after Clear = %q, want 200", r.Status)
	}
	if len(r.Headers) != 0 {
		t.Fatalf("Headers after Clear = %v, want empty", r.Headers)
	}
	if r.Body.Len() != 0 {
		t.Fatalf("Body.Len() after Clear = %d, want 0", r.Body.Len())
	}
}

func TestPresent(t *testing.T) {
	r := New()
	if r.Present() {
		t.Fatalf("Present() = true for empty response, want false")
	}
	r.AddHeader("X-Foo", "1")
	if !r.Present() {
		t.Fatalf("Present() = false after header added, want true")
	}

	r2 := New()
	r2.Body.Write([]byte("a"))
	if !r2.Present() {
		t.Fatalf("Present() = false after body written, want true")
	}
}

func TestToHTTPStatusLineFormat(t *testing.T) {
	r := New()
	r.Status = "101 Switching Protocols"
	out := r.ToHTTP()
	if !bytes.HasPrefix(out, []byte("HTTP/1.1 101 Switching Protocols\r\n")) {
		t.Fatalf("status line = %q", out[:40])
	}
}
