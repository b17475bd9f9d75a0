package asgi

import (
	"context"
	"strconv"

	"qactuar/internal/httpreq"
	"qactuar/internal/httpres"
)

// HTTPHandler adapts one Request/Response pair to the ASGI http scope
// contract (spec §4.5).
type HTTPHandler struct {
	Request  *httpreq.Request
	Response *httpres.Response
	Scheme   string
	Server   Addr

	// Closing marks the connection as shutting down; once true, Receive
	// always returns http.disconnect (spec §4.5, §4.8 step 5: "drive one
	// more app iteration so the app can observe http.disconnect").
	Closing bool

	delivered bool
}

// NewHTTPHandler builds a handler bound to req/resp for the current
// connection.
func NewHTTPHandler(req *httpreq.Request, resp *httpres.Response, scheme string, server Addr) *HTTPHandler {
	return &HTTPHandler{Request: req, Response: resp, Scheme: scheme, Server: server}
}

// CreateScope builds the http scope for Request (spec §3).
func (h *HTTPHandler) CreateScope(client Addr) Scope {
	return Scope{
		Type:        ScopeHTTP,
		ASGI:        Version,
		HTTPVersion: h.Request.VersionNum(),
		Method:      h.Request.Method,
		Scheme:      h.Scheme,
		Path:        h.Request.Path,
		RawPath:     h.Request.RawPath,
		QueryString: h.Request.QueryString,
		RootPath:    "",
		RawHeaders:  rawHeaderPairs(h.Request),
		Client:      client,
		Server:      h.Server,
	}
}

func rawHeaderPairs(req *httpreq.Request) [][2][]byte {
	out := make([][2][]byte, len(req.RawHeaders))
	for i, p := range req.RawHeaders {
		out[i] = [2][]byte{p.Name, p.Value}
	}
	return out
}

// Receive implements the ASGI receive callable (spec §4.5): it returns the
// full body exactly once, then http.disconnect on every later call or once
// Closing is set.
func (h *HTTPHandler) Receive(ctx context.Context) (Message, error) {
	if h.Closing {
		return Message{Type: HTTPDisconnect}, nil
	}
	if h.delivered {
		return Message{Type: HTTPDisconnect}, nil
	}
	h.delivered = true
	return Message{Type: HTTPRequest, Body: h.Request.Body, MoreBody: false}, nil
}

// Send implements the ASGI send callable (spec §4.5). more_body is
// accepted but ignored, per spec §4.5's documented restriction.
func (h *HTTPHandler) Send(ctx context.Context, msg Message) error {
	switch msg.Type {
	case HTTPResponseStart:
		h.Response.Status = statusText(msg.Status)
		for _, kv := range msg.Headers {
			h.Response.AddHeader(kv[0], kv[1])
		}
	case HTTPResponseBody:
		h.Response.Body.Write(msg.Body)
	}
	return nil
}

func statusText(code int) string {
	if code == 0 {
		return "200"
	}
	return strconv.Itoa(code)
}
