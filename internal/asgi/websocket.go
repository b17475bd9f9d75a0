package asgi

import (
	"context"
	"strings"

	"qactuar/internal/qerr"
)

// WebSocketState is the handshake/session state machine (spec §4.6).
type WebSocketState int

const (
	WSInit WebSocketState = iota
	WSAccepted
	WSDisconnected
)

// WebSocketHandler adapts one WebSocket session to the ASGI websocket
// scope contract (spec §4.6).
type WebSocketHandler struct {
	State WebSocketState

	Scheme       string
	Server       Addr
	Path         string
	RawPath      []byte
	QueryString  []byte
	HTTPVersion  string
	RawHeaders   [][2][]byte
	Subprotocols []string

	// Subprotocol is the negotiated subprotocol recorded from
	// websocket.accept, when the header name is sec-websocket-protocol.
	Subprotocol string
	// AcceptHeaders are any additional headers the app attached on
	// websocket.accept, to be flushed into the 101 response.
	AcceptHeaders [][2]string

	// CloseCode defaults to 1000 per spec §3.
	CloseCode int

	disconnectCode int
	receiveQueue   *Message
}

// NewWebSocketHandler returns a handler in the initial INIT state with the
// default close code.
func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{CloseCode: 1000}
}

// CreateScope builds the websocket scope (spec §3).
func (h *WebSocketHandler) CreateScope(client Addr) Scope {
	return Scope{
		Type:         ScopeWebSocket,
		ASGI:         Version,
		HTTPVersion:  h.HTTPVersion,
		Method:       "GET",
		Scheme:       h.Scheme,
		Path:         h.Path,
		RawPath:      h.RawPath,
		QueryString:  h.QueryString,
		RootPath:     "",
		RawHeaders:   h.RawHeaders,
		Client:       client,
		Server:       h.Server,
		Subprotocols: h.Subprotocols,
	}
}

// QueueReceive arms the next message Receive will deliver. The pipeline
// calls this before driving the app so a single Receive call always
// returns one specific inbound event, then falls back to the state-machine
// default on the next call.
func (h *WebSocketHandler) QueueReceive(msg Message) {
	m := msg
	h.receiveQueue = &m
}

// Receive implements the ASGI receive callable (spec §4.6): a queued
// message if one was armed, otherwise websocket.connect in INIT,
// websocket.disconnect with the disconnect code in DISCONNECTED, or
// websocket.disconnect with CloseCode in ACCEPTED (the pipeline always arms
// a queued receive before driving the app in the ACCEPTED state).
func (h *WebSocketHandler) Receive(ctx context.Context) (Message, error) {
	if h.receiveQueue != nil {
		m := *h.receiveQueue
		h.receiveQueue = nil
		return m, nil
	}
	switch h.State {
	case WSInit:
		return Message{Type: WebSocketConnect}, nil
	case WSDisconnected:
		return Message{Type: WebSocketDisconnect, Code: h.disconnectCode}, nil
	default:
		return Message{Type: WebSocketDisconnect, Code: h.CloseCode}, nil
	}
}

// Send implements the ASGI send callable (spec §4.6).
func (h *WebSocketHandler) Send(ctx context.Context, msg Message) error {
	switch msg.Type {
	case WebSocketAccept:
		h.Subprotocol = msg.Subprotocol
		for _, kv := range msg.Headers {
			if strings.EqualFold(kv[0], "sec-websocket-protocol") {
				h.Subprotocol = kv[1]
			}
			h.AcceptHeaders = append(h.AcceptHeaders, [2]string{kv[0], kv[1]})
		}
		h.State = WSAccepted
		return nil
	case WebSocketClose:
		h.CloseCode = msg.Code
		h.State = WSDisconnected
		return nil
	case WebSocketSend:
		hasText := msg.Text != nil
		hasBytes := msg.Bytes != nil
		if hasText == hasBytes {
			return qerr.NewWebSocket("websocket.send requires exactly one of text or bytes")
		}
		return nil
	}
	return nil
}

// Disconnect marks the session disconnected with code, for the pipeline to
// drive a final websocket.disconnect event (spec §4.9).
func (h *WebSocketHandler) Disconnect(code int) {
	h.disconnectCode = code
	h.State = WSDisconnected
}
