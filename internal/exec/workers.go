// Package exec implements the three execution models (spec §4.11,
// §5): simple-fork and pre-fork as genuine OS-process-per-connection
// workers via self re-exec, and async-only as goroutine-per-connection.
package exec

import (
	"os/exec"
	"sync"
	"time"
)

// Worker is a bookkeeping handle for one OS-process worker (spec §3
// "Worker bookkeeping").
type Worker struct {
	ID      int // pid
	Cmd     *exec.Cmd
	Started time.Time
}

// Table tracks live workers keyed by pid; Watch removes each one as soon as
// its process exits.
type Table struct {
	mu      sync.Mutex
	workers map[int]*Worker
}

// NewTable returns an empty worker table.
func NewTable() *Table {
	return &Table{workers: map[int]*Worker{}}
}

// Add records w as live.
func (t *Table) Add(w *Worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers[w.ID] = w
}

// Remove drops pid from the table, e.g. once reaped.
func (t *Table) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.workers, pid)
}

// Len reports the number of live workers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.workers)
}

// Snapshot returns a copy of the live worker pids, for stats gathering.
func (t *Table) Snapshot() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, 0, len(t.workers))
	for pid := range t.workers {
		out = append(out, pid)
	}
	return out
}

// Watch waits on w's process in its own goroutine and removes it from the
// table once it exits. This is the Go analogue of the original's periodic
// SIGCHLD reap tick: cmd.Wait() blocks until the child exits, so no
// polling interval is needed to detect termination.
func (t *Table) Watch(w *Worker) {
	go func() {
		_ = w.Cmd.Wait()
		t.Remove(w.ID)
	}()
}
