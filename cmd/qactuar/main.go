// Command qactuar runs the HTTP/1.1 and WebSocket server described in
// SPEC_FULL.md. Applications are wired in at compile time: an app package
// calls appregistry.Register in its own init(), and this binary's blank
// imports (below) pull those registrations in before main runs (spec §6,
// §9's "compile-time registry... in the style of database/sql.Register").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"qactuar/internal/config"
	qexec "qactuar/internal/exec"
	"qactuar/internal/httpres"
	"qactuar/internal/logging"
	"qactuar/internal/server"

	// Blank-import ASGI app packages here so their init() registers them,
	// e.g.:
	//   _ "example.com/myapp"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if qexec.IsChildConn() {
		os.Exit(runChildConn(ctx))
	}
	if qexec.IsPoolWorker() {
		os.Exit(runPoolWorker(ctx))
	}
	os.Exit(runParent(ctx))
}

func buildConfig(args []string) (config.Config, error) {
	cfg, _, _ := config.Load()

	fs := flag.NewFlagSet("qactuar", flag.ContinueOnError)
	host := fs.String("host", cfg.Host, "listen host")
	port := fs.Int("p", cfg.Port, "listen port")
	fs.IntVar(port, "port", cfg.Port, "listen port")
	serverType := fs.String("s", string(cfg.ServerType), "server type: simple_fork, prefork, async_only")
	fs.StringVar(serverType, "server-type", string(cfg.ServerType), "server type: simple_fork, prefork, async_only")
	selectSleep := fs.Float64("select-sleep-time", cfg.SelectSleepTime, "accept-readiness poll interval, seconds")
	recvTimeout := fs.Float64("r", cfg.RecvTimeout, "per-read socket timeout, seconds")
	fs.Float64Var(recvTimeout, "recv-timeout", cfg.RecvTimeout, "per-read socket timeout, seconds")
	recvBytes := fs.Int("recv-bytes", cfg.RecvBytes, "per-read buffer size")
	poolSize := fs.Int("process-pool-size", cfg.ProcessPoolSize, "pre-fork worker count (0 = CPU count)")
	requestTimeout := fs.Float64("request-timeout", cfg.RequestTimeout, "max seconds to wait for a request with no bytes at all")
	sslCertPath := fs.String("ssl-cert-path", cfg.SSLCertPath, "TLS certificate path")
	sslKeyPath := fs.String("ssl-cert-key", cfg.SSLKeyPath, "TLS private key path")
	sslCiphers := fs.String("ssl-ciphers", cfg.SSLCiphers, "comma-separated TLS cipher suite names")
	appDir := fs.String("a", cfg.AppDir, "app search directory prefix (no-op: apps resolve through the compile-time registry)")
	fs.StringVar(appDir, "app-dir", cfg.AppDir, "app search directory prefix (no-op: apps resolve through the compile-time registry)")
	showVersion := fs.Bool("v", false, "print version and exit")
	fs.BoolVar(showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if *showVersion {
		fmt.Println("qactuar " + version)
		os.Exit(0)
	}

	cfg.Host = *host
	cfg.Port = *port
	cfg.ServerType = config.ServerType(*serverType)
	cfg.SelectSleepTime = *selectSleep
	cfg.RecvTimeout = *recvTimeout
	cfg.RecvBytes = *recvBytes
	cfg.ProcessPoolSize = *poolSize
	cfg.RequestTimeout = *requestTimeout
	cfg.SSLCertPath = *sslCertPath
	cfg.SSLKeyPath = *sslKeyPath
	cfg.SSLCiphers = *sslCiphers
	cfg.AppDir = *appDir

	if fs.NArg() > 0 {
		if cfg.Apps == nil {
			cfg.Apps = map[string]string{}
		}
		cfg.Apps["/"] = fs.Arg(0)
	}

	return cfg, nil
}

func buildServer(args []string) (*server.Server, *zap.Logger, error) {
	cfg, err := buildConfig(args)
	if err != nil {
		return nil, nil, err
	}

	log, err := logging.New(cfg.Logs)
	if err != nil {
		return nil, nil, err
	}

	httpres.ServerBanner = "Qactuar " + version

	if len(cfg.Apps) == 0 {
		log.Error("no apps registered, exiting")
		return nil, log, fmt.Errorf("no apps configured")
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("server init failed", zap.Error(err))
		return nil, log, err
	}
	return srv, log, nil
}

// runParent is the normal top-level process: bind the listener, drive
// lifespan startup, serve via the configured execution model, then drive
// lifespan shutdown on signal (spec §4.12).
func runParent(ctx context.Context) int {
	srv, log, err := buildServer(os.Args[1:])
	if err != nil {
		return 1
	}

	if err := srv.Listen(ctx); err != nil {
		log.Error("listen failed", zap.Error(err))
		return 1
	}
	if err := srv.StartUp(ctx); err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	srv.GatherProcessStats(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("serve loop exited", zap.Error(err))
		}
	}

	srv.ShutDown(context.Background())
	return 0
}

// runChildConn is the simple-fork model's re-exec'd worker: fd 3 is the
// already-accepted connection.
func runChildConn(ctx context.Context) int {
	srv, log, err := buildServer(os.Args[1:])
	if err != nil {
		return 1
	}
	if err := qexec.RunChildConn(ctx, srv.ConnHandler()); err != nil {
		log.Error("child connection handler failed", zap.Error(err))
		return 1
	}
	return 0
}

// runPoolWorker is the pre-fork model's re-exec'd long-lived worker: fd 3
// is the inherited listener, fd 4 is its wake pipe.
func runPoolWorker(ctx context.Context) int {
	srv, log, err := buildServer(os.Args[1:])
	if err != nil {
		return 1
	}
	if err := qexec.RunPoolWorker(ctx, srv.ConnHandler()); err != nil {
		log.Error("pool worker failed", zap.Error(err))
		return 1
	}
	return 0
}
