// Package server wires configuration, the app table, execution model, and
// lifespan driving into one process (spec §4.12).
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"qactuar/internal/appregistry"
	"qactuar/internal/asgi"
	"qactuar/internal/config"
	qexec "qactuar/internal/exec"
	"qactuar/internal/pipeline"
	"qactuar/internal/qerr"
	"qactuar/internal/router"
)

// Server is the process skeleton: listen socket, app table, execution
// model, and lifespan state (spec §4.12).
type Server struct {
	Config config.Config
	Log    *zap.Logger

	Router   *router.Router
	Pipeline *pipeline.Pipeline

	apps []asgi.App // every distinct app, for lifespan fan-out

	listener  *net.TCPListener
	fqdn      string
	tlsConfig *tls.Config

	shuttingDown atomic.Bool
	workers      *qexec.Table
	pool         *qexec.Pool
}

// New builds a Server from cfg: resolves every configured route to a
// registered app, builds the router, and prepares (but does not yet bind)
// the listener.
func New(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		Config:  cfg,
		Log:     log,
		Router:  router.New(),
		workers: qexec.NewTable(),
	}

	for route, name := range cfg.Apps {
		app, ok := appregistry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("server: app %q for route %q is not registered", name, route)
		}
		s.Router.Add(route, app)
		s.apps = append(s.apps, app)
	}
	if len(s.apps) == 0 {
		return nil, fmt.Errorf("server: no apps registered, refusing to start")
	}

	scheme := "http"
	if cfg.SSLCertPath != "" && cfg.SSLKeyPath != "" {
		scheme = "https"
	}

	fqdn, err := fqdnOf(cfg.Host)
	if err != nil {
		return nil, err
	}
	s.fqdn = fqdn

	s.Pipeline = pipeline.New(s.Router, log)
	s.Pipeline.RecvBytes = cfg.RecvBytes
	s.Pipeline.RecvTimeout = durationFromSeconds(cfg.RecvTimeout)
	s.Pipeline.RequestTimeout = durationFromSeconds(cfg.RequestTimeout)
	s.Pipeline.Scheme = scheme
	s.Pipeline.Server = asgi.Addr{Host: fqdn, Port: cfg.Port}
	s.Pipeline.WorkerPID = os.Getpid()

	if cfg.SSLCertPath != "" && cfg.SSLKeyPath != "" {
		tlsCfg, err := s.buildTLSConfig()
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsCfg
	}

	return s, nil
}

func durationFromSeconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// fqdnOf returns the host's fully qualified domain name, falling back to
// os.Hostname() with any trailing dot stripped (spec.md's supplemented
// "FQDN computation," matching the original's simple hostname lookup with
// no reverse-DNS resolution).
func fqdnOf(host string) (string, error) {
	if host != "" && host != "0.0.0.0" && host != "localhost" {
		return host, nil
	}
	name, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(name, "."), nil
}

// buildTLSConfig constructs a *tls.Config from the configured cert/key
// paths and cipher list (spec §4.12). Unrecognized cipher names are
// skipped with a warning rather than failing startup.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.Config.SSLCertPath, s.Config.SSLKeyPath)
	if err != nil {
		return nil, fmt.Errorf("server: loading TLS cert/key: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if s.Config.SSLCiphers != "" {
		cfg.CipherSuites = resolveCipherSuites(s.Config.SSLCiphers, s.Log)
	}
	return cfg, nil
}

func resolveCipherSuites(raw string, log *zap.Logger) []uint16 {
	wanted := strings.Split(raw, ",")
	known := tls.CipherSuites()
	var out []uint16
	for _, w := range wanted {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		matched := false
		for _, k := range known {
			if strings.EqualFold(k.Name, w) {
				out = append(out, k.ID)
				matched = true
				break
			}
		}
		if !matched {
			log.Warn("unrecognized TLS cipher suite name, skipping", zap.String("cipher", w))
		}
	}
	return out
}

// Listen binds the listen socket with SO_REUSEADDR (spec §4.12).
func (s *Server) Listen(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	ln, err := qexec.Listen(ctx, addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// ConnHandler returns the per-connection handler: TLS-wrap when
// configured, then run the pipeline. It is used both by the async-only
// accept loop in this process and by re-exec'd simple-fork/pre-fork child
// processes, which rebuild a Server from the same config and never call
// Listen.
func (s *Server) ConnHandler() qexec.ConnHandler {
	return func(ctx context.Context, conn net.Conn, client asgi.Addr) {
		if s.tlsConfig != nil {
			conn = tls.Server(conn, s.tlsConfig)
		}
		s.Pipeline.Handle(ctx, conn, client)
	}
}

// StartUp drives lifespan startup against every registered app (spec
// §4.12 "start_up drives lifespan startup against every app").
func (s *Server) StartUp(ctx context.Context) error {
	h := asgi.NewLifespanHandler(s.ShuttingDown, s.Log)
	scope := h.CreateScope()
	for _, app := range s.apps {
		if err := app.Serve(ctx, scope, h.Receive, h.Send); err != nil {
			if qe, ok := err.(*qerr.Error); ok && qe.Kind == qerr.LifespanFailure {
				return qe
			}
			return err
		}
	}
	s.Log.Info("serving",
		zap.String("scheme", s.Pipeline.Scheme),
		zap.String("host", s.Config.Host),
		zap.Int("port", s.Config.Port),
	)
	return nil
}

// ShutDown sets the shutting-down flag and drives lifespan shutdown
// against every app (spec §4.12).
func (s *Server) ShutDown(ctx context.Context) {
	s.shuttingDown.Store(true)
	s.Log.Info("shutting down")
	h := asgi.NewLifespanHandler(s.ShuttingDown, s.Log)
	scope := h.CreateScope()
	for _, app := range s.apps {
		_ = app.Serve(ctx, scope, h.Receive, h.Send)
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// ShuttingDown reports the server's shutdown flag, for the lifespan
// handler's receive logic.
func (s *Server) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Serve runs the configured execution model's accept loop until ctx is
// canceled (spec §4.11).
func (s *Server) Serve(ctx context.Context) error {
	switch s.Config.ServerType {
	case config.SimpleFork:
		return qexec.RunSimpleFork(ctx, s.listener, durationFromSeconds(s.Config.SelectSleepTime), s.Config.MaxProcesses, s.workers)
	case config.PreFork:
		size := s.Config.ProcessPoolSize
		if size <= 0 {
			size = runtime.NumCPU()
		}
		pool, err := qexec.StartPool(s.listener, size)
		if err != nil {
			return err
		}
		s.pool = pool
		return pool.RunAccept(ctx, s.listener, durationFromSeconds(s.Config.SelectSleepTime))
	default: // async-only
		return qexec.RunAsyncOnly(ctx, s.listener, s.ConnHandler())
	}
}

// GatherProcessStats starts a background loop sampling runtime memory
// stats and live worker counts at the configured check interval, logged
// at debug level (SPEC_FULL.md supplemented "process statistics
// gathering").
func (s *Server) GatherProcessStats(ctx context.Context) {
	if !s.Config.GatherProcessStats {
		return
	}
	interval := durationFromSeconds(s.Config.CheckProcessInterval)
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		var m runtime.MemStats
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&m)
				s.Log.Debug("process stats",
					zap.Uint64("heap_alloc_bytes", m.HeapAlloc),
					zap.Uint64("sys_bytes", m.Sys),
					zap.Int("num_goroutine", runtime.NumGoroutine()),
					zap.Int("live_workers", s.workers.Len()),
				)
			}
		}
	}()
}
