package exec

import (
	"context"
	"net"
	"os"
	osexec "os/exec"
	"time"

	"golang.org/x/sys/unix"

	"qactuar/internal/asgi"
)

// PoolWorkerEnv, when set to "1", tells a re-exec'd process to run as a
// long-lived pre-fork pool worker: fd 3 is the inherited listening
// socket, fd 4 is the read end of this worker's wake pipe (spec §4.11.2).
const PoolWorkerEnv = "QACTUAR_POOL_WORKER"

// IsPoolWorker reports whether this process was re-exec'd as a pre-fork
// pool worker.
func IsPoolWorker() bool {
	return os.Getenv(PoolWorkerEnv) == "1"
}

// poolWorker is the parent's handle on one long-lived pre-fork worker: the
// re-exec'd process plus the write end of its wake pipe.
type poolWorker struct {
	cmd      *osexec.Cmd
	wakeSend *os.File
}

// Pool is the parent side of the pre-fork model: a fixed set of long-lived
// workers woken round-robin as connections become acceptable.
type Pool struct {
	workers []*poolWorker
	next    int
}

// StartPool spawns size long-lived workers, each inheriting a duplicated
// listener fd and its own wake pipe (spec §4.11.2 "one per configured
// slot... its own single-producer/single-consumer signal queue").
func StartPool(ln *net.TCPListener, size int) (*Pool, error) {
	p := &Pool{}
	for i := 0; i < size; i++ {
		lnFile, err := ln.File()
		if err != nil {
			p.Close()
			return nil, err
		}
		pr, pw, err := os.Pipe()
		if err != nil {
			lnFile.Close()
			p.Close()
			return nil, err
		}

		exe, err := os.Executable()
		if err != nil {
			lnFile.Close()
			pr.Close()
			pw.Close()
			p.Close()
			return nil, err
		}
		cmd := osexec.Command(exe, os.Args[1:]...)
		cmd.Env = append(os.Environ(), PoolWorkerEnv+"=1")
		cmd.ExtraFiles = []*os.File{lnFile, pr}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			lnFile.Close()
			pr.Close()
			pw.Close()
			p.Close()
			return nil, err
		}
		lnFile.Close()
		pr.Close()

		p.workers = append(p.workers, &poolWorker{cmd: cmd, wakeSend: pw})
	}
	return p, nil
}

// Wake sends one wake token to the next worker, round-robin (spec
// §4.11.2: "enqueues a wake token to the next worker... and advances the
// index").
func (p *Pool) Wake() error {
	if len(p.workers) == 0 {
		return nil
	}
	w := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)
	_, err := w.wakeSend.Write([]byte{1})
	return err
}

// Close closes every worker's wake pipe, which the child observes as EOF
// and exits on (spec §4.11.2: "workers... exit only on shutdown").
func (p *Pool) Close() {
	for _, w := range p.workers {
		w.wakeSend.Close()
	}
}

// RunAccept is the parent's accept-readiness loop: it never calls Accept
// itself, only polls the listener and wakes the next worker.
func (p *Pool) RunAccept(ctx context.Context, ln *net.TCPListener, selectSleep time.Duration) error {
	lnFile, err := ln.File()
	if err != nil {
		return err
	}
	defer lnFile.Close()
	fd := int(lnFile.Fd())
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	timeoutMs := int(selectSleep.Milliseconds())
	if timeoutMs <= 0 {
		timeoutMs = 1
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := unix.Poll(pfds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}
		_ = p.Wake()
	}
}

// RunPoolWorker is a pre-fork child's main loop: block on the wake pipe,
// accept one connection per token, run handler, repeat until the pipe is
// closed.
func RunPoolWorker(ctx context.Context, handler ConnHandler) error {
	lnFile := os.NewFile(3, "qactuar-listener")
	wake := os.NewFile(4, "qactuar-wake")

	ln, err := net.FileListener(lnFile)
	_ = lnFile.Close()
	if err != nil {
		return err
	}
	defer ln.Close()

	token := make([]byte, 1)
	for {
		if _, err := wake.Read(token); err != nil {
			return nil // wake pipe closed: shutdown
		}

		conn, err := ln.Accept()
		if err != nil {
			continue
		}

		client := asgi.Addr{}
		if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			client = asgi.Addr{Host: tcp.IP.String(), Port: tcp.Port}
		}
		handler(ctx, conn, client)
		conn.Close()
	}
}
