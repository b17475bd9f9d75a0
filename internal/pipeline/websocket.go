package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"qactuar/internal/asgi"
	"qactuar/internal/httpreq"
	"qactuar/internal/httpres"
	"qactuar/internal/qerr"
	"qactuar/internal/wsframe"
)

// websocketAcceptMagic is the fixed RFC 6455 handshake GUID.
const websocketAcceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func acceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + websocketAcceptMagic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func websocketScheme(scheme string) string {
	if scheme == "https" {
		return "wss"
	}
	return "ws"
}

func rawHeaderPairsFromReq(req *httpreq.Request) [][2][]byte {
	out := make([][2][]byte, len(req.RawHeaders))
	for i, h := range req.RawHeaders {
		out[i] = [2][]byte{h.Name, h.Value}
	}
	return out
}

func parseSubprotocols(headers interface{ Get(string) (string, bool) }) []string {
	raw, ok := headers.Get("sec-websocket-protocol")
	if !ok || raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// wsSession maintains the byte buffer spanning reads from conn, so a frame
// that arrives split across TCP segments (or several frames in one read)
// is handled transparently.
type wsSession struct {
	conn      net.Conn
	recvBytes int
	pending   []byte
}

// nextFrame blocks, reading from conn as needed, until one complete frame
// is available (spec §4.10's three-tier length decoding; client frames
// must be masked). The read deadline left by the request read loop is
// cleared first, so reads wait for bytes; a read timeout is not an error
// here — it mirrors the original's "keep trying recv until the frame
// completes" loop.
func (s *wsSession) nextFrame() (wsframe.Frame, error) {
	buf := make([]byte, s.recvBytes)
	_ = s.conn.SetReadDeadline(time.Time{})
	for {
		frame, n, ok, err := wsframe.Decode(s.pending, true)
		if err != nil {
			return wsframe.Frame{}, qerr.NewWebSocket("protocol error: " + err.Error())
		}
		if ok {
			s.pending = s.pending[n:]
			return frame, nil
		}

		rn, rerr := s.conn.Read(buf)
		if rn > 0 {
			s.pending = append(s.pending, buf[:rn]...)
		}
		if rerr != nil {
			if isTimeout(rerr) {
				continue
			}
			return wsframe.Frame{}, rerr
		}
	}
}

// readMessage accumulates frames until reading_complete (spec §3: "last
// frame opcode != CONTINUATION").
func (s *wsSession) readMessage() ([]wsframe.Frame, error) {
	var frames []wsframe.Frame
	for {
		f, err := s.nextFrame()
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		if f.Opcode != wsframe.Continuation {
			return frames, nil
		}
	}
}

func joinPayload(frames []wsframe.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f.Payload...)
	}
	return out
}

func writeFrames(conn net.Conn, segments [][]byte) error {
	for _, seg := range segments {
		if _, err := conn.Write(seg); err != nil {
			return err
		}
	}
	return nil
}

// runWebSocketLoop implements spec §4.9: handshake, then a frame read /
// dispatch loop until close.
func (p *Pipeline) runWebSocketLoop(ctx context.Context, conn net.Conn, req *httpreq.Request, client asgi.Addr, id string) {
	app, scopedPath, ok := p.Router.Match(req.Path)
	if !ok {
		p.Log.Warn("websocket upgrade: no app matched", zap.String("request_id", id), zap.String("path", req.Path))
		return
	}
	req.Path = scopedPath

	h := asgi.NewWebSocketHandler()
	h.Scheme = websocketScheme(p.Scheme)
	h.Server = p.Server
	h.Path = req.Path
	h.RawPath = req.RawPath
	h.QueryString = req.QueryString
	h.HTTPVersion = req.VersionNum()
	h.RawHeaders = rawHeaderPairsFromReq(req)
	h.Subprotocols = parseSubprotocols(req.Headers)

	scope := h.CreateScope(client)
	if err := app.Serve(ctx, scope, h.Receive, h.Send); err != nil {
		p.Log.Error("websocket handshake app error", zap.String("request_id", id), zap.Error(err))
	}

	if h.State != asgi.WSAccepted {
		resp := httpres.New()
		resp.Status = "403"
		resp.Body.Write([]byte("403"))
		if _, err := conn.Write(resp.ToHTTP()); err != nil {
			p.Log.Warn("websocket rejection write failed", zap.String("request_id", id), zap.Error(err))
		}
		p.logAccess(client, id, req, resp.Status)
		return
	}

	resp := httpres.New()
	resp.Status = "101 Switching Protocols"
	resp.AddHeader("Upgrade", "websocket")
	resp.AddHeader("Connection", "Upgrade")
	clientKey, _ := req.Headers.Get("sec-websocket-key")
	resp.AddHeader("Sec-WebSocket-Accept", acceptKey(clientKey))
	if h.Subprotocol != "" {
		resp.AddHeader("Sec-WebSocket-Protocol", h.Subprotocol)
	}
	for _, kv := range h.AcceptHeaders {
		if strings.EqualFold(kv[0], "sec-websocket-protocol") {
			continue
		}
		resp.AddHeader(kv[0], kv[1])
	}
	if _, err := conn.Write(resp.ToHTTP()); err != nil {
		p.Log.Warn("websocket handshake write failed", zap.String("request_id", id), zap.Error(err))
		return
	}
	p.logAccess(client, id, req, resp.Status)

	session := &wsSession{conn: conn, recvBytes: p.RecvBytes}

	send := func(ctx context.Context, msg asgi.Message) error {
		if err := h.Send(ctx, msg); err != nil {
			return err
		}
		switch msg.Type {
		case asgi.WebSocketSend:
			if err := p.sendWebSocketData(conn, msg); err != nil {
				return err
			}
		case asgi.WebSocketClose:
			_ = writeFrames(conn, wsframe.Encode(wsframe.Close, closePayload(msg.Code)))
		}
		return nil
	}

	for {
		frames, err := session.readMessage()
		if err != nil {
			p.Log.Warn("websocket frame error", zap.String("request_id", id), zap.Error(err))
			return
		}

		last := frames[len(frames)-1].Opcode
		switch last {
		case wsframe.Close:
			h.Disconnect(closeCode(frames[len(frames)-1].Payload))
			scope := h.CreateScope(client)
			_ = app.Serve(ctx, scope, h.Receive, send)
			return
		case wsframe.Ping:
			if err := writeFrames(conn, wsframe.Encode(wsframe.Pong, frames[len(frames)-1].Payload)); err != nil {
				p.Log.Warn("websocket pong write failed", zap.String("request_id", id), zap.Error(err))
				return
			}
			continue
		}

		h.QueueReceive(dataMessage(frames))
		scope := h.CreateScope(client)
		if err := app.Serve(ctx, scope, h.Receive, send); err != nil {
			p.Log.Error("websocket app error", zap.String("request_id", id), zap.Error(err))
		}
		if h.State == asgi.WSDisconnected {
			return
		}
	}
}

func dataMessage(frames []wsframe.Frame) asgi.Message {
	payload := joinPayload(frames)
	if frames[0].Opcode == wsframe.Binary {
		return asgi.Message{Type: asgi.WebSocketReceive, Bytes: payload}
	}
	text := string(payload)
	return asgi.Message{Type: asgi.WebSocketReceive, Text: &text}
}

func (p *Pipeline) sendWebSocketData(conn net.Conn, msg asgi.Message) error {
	if msg.Text != nil {
		return writeFrames(conn, wsframe.Encode(wsframe.Text, []byte(*msg.Text)))
	}
	return writeFrames(conn, wsframe.Encode(wsframe.Binary, msg.Bytes))
}

func closePayload(code int) []byte {
	if code == 0 {
		code = 1000
	}
	return []byte{byte(code >> 8), byte(code)}
}

func closeCode(payload []byte) int {
	if len(payload) < 2 {
		return 1000
	}
	return int(payload[0])<<8 | int(payload[1])
}
