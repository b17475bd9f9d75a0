// Package httpres implements the HTTP response accumulator and its
// serialization to wire bytes (spec §4.3).
package httpres

import (
	"fmt"
	"net/http"
	"time"

	"qactuar/internal/buffer"
)

// ServerBanner is the Server header value; it is exported so cmd/qactuar
// can stamp a build-time version into it without an import cycle.
var ServerBanner = "Qactuar 0.1"

// Response is the per-connection response accumulator.
type Response struct {
	Status  string // ASCII status, e.g. "200" or "101 Switching Protocols"
	Headers []buffer.HeaderPair
	Body    buffer.Bytes
}

// New returns a Response with the default 200 status.
func New() *Response {
	return &Response{Status: "200"}
}

// AddHeader appends a header pair in order.
func (r *Response) AddHeader(name, value string) {
	r.Headers = append(r.Headers, buffer.HeaderPair{Name: []byte(name), Value: []byte(value)})
}

// Present reports whether the response carries any header or body byte
// (spec §4.3 "Boolean coercion").
func (r *Response) Present() bool {
	return len(r.Headers) > 0 || r.Body.Len() > 0
}

// Clear resets status to "200", drops headers, and empties the body.
func (r *Response) Clear() {
	r.Status = "200"
	r.Headers = nil
	r.Body.Clear()
}

// ToHTTP serializes the response into wire bytes: status line, Date and
// Server headers, the app's headers in order, a blank line, then the body.
func (r *Response) ToHTTP() []byte {
	var out buffer.Bytes
	out.Write([]byte("HTTP/1.1 " + r.Status + "\r\n"))
	out.Write([]byte("Date: " + time.Now().UTC().Format(http.TimeFormat) + "\r\n"))
	out.Write([]byte("Server: " + ServerBanner + "\r\n"))
	for _, h := range r.Headers {
		out.Write([]byte(fmt.Sprintf("%s: %s\r\n", h.Name, h.Value)))
	}
	out.Write([]byte("\r\n"))
	out.Write(r.Body.Read())
	return out.Read()
}
