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

// ChildConnEnv, when set to "1" in the environment, tells a re-exec'd
// process to skip normal server startup and instead run the connection
// pipeline directly against the inherited fd 3 (spec §4.11.1's "fork a
// child worker that runs the full pipeline on the accepted socket then
// exits", rendered as self re-exec since Go cannot safely fork() a
// running multi-goroutine runtime).
const ChildConnEnv = "QACTUAR_CHILD_CONN"

// IsChildConn reports whether this process was re-exec'd to serve one
// already-accepted connection.
func IsChildConn() bool {
	return os.Getenv(ChildConnEnv) == "1"
}

// ConnHandler runs the connection pipeline against one accepted socket.
type ConnHandler func(ctx context.Context, conn net.Conn, client asgi.Addr)

// RunChildConn is the re-exec'd child's entire job: read fd 3 as the
// accepted connection, run handler once, then return so main can exit 0.
func RunChildConn(ctx context.Context, handler ConnHandler) error {
	f := os.NewFile(3, "qactuar-accepted-conn")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	defer conn.Close()

	client := asgi.Addr{}
	if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		client = asgi.Addr{Host: tcp.IP.String(), Port: tcp.Port}
	}
	handler(ctx, conn, client)
	return nil
}

// spawnChildConn re-execs the running binary with file duplicated onto its
// fd 3 and ChildConnEnv set, then returns immediately; the caller owns
// reaping it via Table.Watch.
func spawnChildConn(file *os.File) (*osexec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := osexec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), ChildConnEnv+"=1")
	cmd.ExtraFiles = []*os.File{file}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

const serviceUnavailable = "HTTP/1.1 503 Service Unavailable\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// RunSimpleFork is the simple-fork accept loop (spec §4.11.1): poll the
// listener at selectSleep intervals, and on each accepted connection,
// spawn a fresh child OS process to run the full pipeline against it.
// When table already holds maxProcesses live workers, the connection is
// refused with 503 instead of being forked.
func RunSimpleFork(ctx context.Context, ln *net.TCPListener, selectSleep time.Duration, maxProcesses int, table *Table) error {
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

		conn, err := ln.Accept()
		if err != nil {
			continue
		}

		if table.Len() >= maxProcesses {
			_, _ = conn.Write([]byte(serviceUnavailable))
			conn.Close()
			continue
		}

		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		connFile, err := tcpConn.File()
		tcpConn.Close()
		if err != nil {
			continue
		}

		cmd, err := spawnChildConn(connFile)
		connFile.Close()
		if err != nil {
			continue
		}

		w := &Worker{ID: cmd.Process.Pid, Cmd: cmd, Started: time.Now()}
		table.Add(w)
		table.Watch(w)
	}
}
