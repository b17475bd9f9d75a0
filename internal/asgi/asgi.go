// Package asgi defines the Go rendition of the ASGI application contract:
// a Scope, a Receive callable, a Send callable, and the App interface an
// application implements (spec §4.5-§4.7, §9).
package asgi

import "context"

// Version is the ASGI version advertised in every scope (spec §6: "v2.0 /
// spec_version 2.0").
var Version = map[string]string{"version": "2.0", "spec_version": "2.0"}

// ScopeType distinguishes the three scope variants (spec §3).
type ScopeType string

const (
	ScopeHTTP      ScopeType = "http"
	ScopeWebSocket ScopeType = "websocket"
	ScopeLifespan  ScopeType = "lifespan"
)

// Addr is a (host, port) pair, used for Scope.Client and Scope.Server.
type Addr struct {
	Host string
	Port int
}

// Scope is the immutable per-connection descriptor delivered to an app.
// Fields not meaningful to a given ScopeType are left zero.
type Scope struct {
	Type ScopeType
	ASGI map[string]string

	HTTPVersion  string
	Method       string
	Scheme       string
	Path         string
	RawPath      []byte
	QueryString  []byte
	RootPath     string
	RawHeaders   [][2][]byte
	Client       Addr
	Server       Addr
	Subprotocols []string
}

// MessageType enumerates the ASGI message "type" tags this server produces
// or consumes (spec §9: "dynamic dispatch by string... maps to a tagged
// union of message variants").
type MessageType string

const (
	HTTPRequest       MessageType = "http.request"
	HTTPDisconnect    MessageType = "http.disconnect"
	HTTPResponseStart MessageType = "http.response.start"
	HTTPResponseBody  MessageType = "http.response.body"

	WebSocketConnect    MessageType = "websocket.connect"
	WebSocketAccept     MessageType = "websocket.accept"
	WebSocketReceive    MessageType = "websocket.receive"
	WebSocketSend       MessageType = "websocket.send"
	WebSocketClose      MessageType = "websocket.close"
	WebSocketDisconnect MessageType = "websocket.disconnect"

	LifespanStartup        MessageType = "lifespan.startup"
	LifespanStartupFailed  MessageType = "lifespan.startup.failed"
	LifespanStartupDone    MessageType = "lifespan.startup.complete"
	LifespanShutdown       MessageType = "lifespan.shutdown"
	LifespanShutdownFailed MessageType = "lifespan.shutdown.failed"
	LifespanShutdownDone   MessageType = "lifespan.shutdown.complete"
)

// Message is the tagged union of every event an app may send or receive.
// Only the fields relevant to Type are populated.
type Message struct {
	Type MessageType

	// http.request / http.response.body
	Body     []byte
	MoreBody bool

	// http.response.start
	Status  int
	Headers [][2]string

	// websocket.receive / websocket.send
	Text  *string
	Bytes []byte

	// websocket.accept
	Subprotocol string

	// websocket.disconnect / websocket.close
	Code int

	// lifespan.*.failed
	Message string
}

// Receive is the async-callable analogue: the app calls it to obtain the
// next inbound event.
type Receive func(ctx context.Context) (Message, error)

// Send is the async-callable analogue: the app calls it to emit an
// outbound event.
type Send func(ctx context.Context, msg Message) error

// App is the Go rendition of an ASGI application: given a scope and the
// receive/send callables, it runs one lifecycle to completion.
type App interface {
	Serve(ctx context.Context, scope Scope, receive Receive, send Send) error
}

// AppFunc adapts a plain function to the App interface.
type AppFunc func(ctx context.Context, scope Scope, receive Receive, send Send) error

// Serve implements App.
func (f AppFunc) Serve(ctx context.Context, scope Scope, receive Receive, send Send) error {
	return f(ctx, scope, receive, send)
}
