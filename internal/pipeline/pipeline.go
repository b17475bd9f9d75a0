// Package pipeline drives one accepted connection end to end: the
// optional TLS handshake, the HTTP request read loop, app resolution and
// dispatch, and the access log record (spec §4.8). WebSocket upgrades are
// handed off to the loop in websocket.go (spec §4.9).
package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qactuar/internal/asgi"
	"qactuar/internal/httpreq"
	"qactuar/internal/httpres"
	"qactuar/internal/qerr"
	"qactuar/internal/router"
)

// Pipeline holds everything a connection needs that does not vary
// per-request: routing table, timeouts, and the worker's identity for the
// access log.
type Pipeline struct {
	Router *router.Router
	Log    *zap.Logger

	RecvBytes      int
	RecvTimeout    time.Duration
	RequestTimeout time.Duration

	Scheme    string
	Server    asgi.Addr
	WorkerPID int
}

// New builds a Pipeline; a nil logger is replaced with a no-op one.
func New(rt *router.Router, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Router:         rt,
		Log:            log,
		RecvBytes:      65536,
		RecvTimeout:    time.Millisecond,
		RequestTimeout: 60 * time.Second,
		Scheme:         "http",
	}
}

// Handle runs the full connection pipeline against conn, closing it before
// returning (spec §4.8).
func (p *Pipeline) Handle(ctx context.Context, conn net.Conn, client asgi.Addr) {
	id := uuid.NewString()
	defer conn.Close()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			if !isBenignTLSAlert(err) {
				p.Log.Warn("tls handshake failed", zap.String("request_id", id), zap.Error(err))
				resp := httpres.New()
				resp.Status = "403"
				resp.Body.Write([]byte("403"))
				resp.AddHeader("x-request-id", id)
				_, _ = tlsConn.NetConn().Write(resp.ToHTTP())
				return
			}
		}
	}

	req, raw := p.readRequest(conn, id)
	if len(raw) == 0 {
		return
	}

	if isWebSocketUpgrade(req) {
		p.runWebSocketLoop(ctx, conn, req, client, id)
		return
	}

	resp := httpres.New()
	handler := asgi.NewHTTPHandler(req, resp, p.Scheme, p.Server)

	app, scopedPath, ok := p.Router.Match(req.Path)
	if ok {
		req.Path = scopedPath
		scope := handler.CreateScope(client)
		if err := app.Serve(ctx, scope, handler.Receive, handler.Send); err != nil {
			p.writeAppError(resp, id, err)
		}
	} else {
		p.writeAppError(resp, id, qerr.NewRouteNotFound())
	}

	resp.AddHeader("x-request-id", id)
	if _, err := conn.Write(resp.ToHTTP()); err != nil {
		p.Log.Warn("response write failed", zap.String("request_id", id), zap.Error(err))
	}
	p.logAccess(client, id, req, resp.Status)

	if ok {
		handler.Closing = true
		scope := handler.CreateScope(client)
		_ = app.Serve(ctx, scope, handler.Receive, handler.Send)
	}
}

// readRequest reads from conn with a per-call deadline until the request is
// complete, or no bytes at all have arrived within RequestTimeout (spec
// §4.8 step 2). It never returns an error: a socket failure simply yields
// whatever partial request was accumulated.
func (p *Pipeline) readRequest(conn net.Conn, id string) (*httpreq.Request, []byte) {
	req := httpreq.New(id)
	var acc []byte
	start := time.Now()
	buf := make([]byte, p.RecvBytes)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(p.RecvTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			acc = append(acc, chunk...)
			req.Feed(acc)
		}
		if req.BodyComplete() {
			break
		}
		if err != nil {
			if isTimeout(err) {
				if len(acc) == 0 && time.Since(start) > p.RequestTimeout {
					break
				}
				continue
			}
			break
		}
	}
	return req, acc
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isBenignTLSAlert(err error) bool {
	return strings.Contains(err.Error(), "sslv3 alert") ||
		strings.Contains(err.Error(), "tls: first record does not look like a TLS handshake")
}

func isWebSocketUpgrade(req *httpreq.Request) bool {
	conn, _ := req.Headers.Get("connection")
	upgrade, _ := req.Headers.Get("upgrade")
	return strings.EqualFold(conn, "upgrade") && strings.EqualFold(upgrade, "websocket")
}

// writeAppError renders err onto resp per spec §4.8 step 4's exception
// table: an *qerr.Error of Kind HTTP or RouteNotFound echoes its code as
// both status and body; anything else is a 500 with a generic body and an
// error-level log carrying the request id.
func (p *Pipeline) writeAppError(resp *httpres.Response, id string, err error) {
	var qe *qerr.Error
	if errors.As(err, &qe) && (qe.Kind == qerr.HTTP || qe.Kind == qerr.RouteNotFound) {
		code := strconv.Itoa(qe.Code)
		resp.Status = code
		resp.Body.Clear()
		resp.Body.Write([]byte(code))
		return
	}

	p.Log.Error("unhandled application error", zap.String("request_id", id), zap.Error(err))
	resp.Status = "500"
	resp.Body.Clear()
	resp.Body.Write([]byte("Internal Server Error"))
}

// logAccess emits the access log record (spec §4.8: "client host, client
// port, worker pid, request id, method, HTTP version number, original
// path, status code").
func (p *Pipeline) logAccess(client asgi.Addr, id string, req *httpreq.Request, status string) {
	path := req.OriginalPath
	if path == "" {
		path = "/"
	}
	p.Log.Info("access",
		zap.String("host", client.Host),
		zap.Int("port", client.Port),
		zap.Int("worker_pid", p.WorkerPID),
		zap.String("request_id", id),
		zap.String("method", req.Method),
		zap.String("http_version", req.VersionNum()),
		zap.String("path", path),
		zap.String("status", status),
	)
}
