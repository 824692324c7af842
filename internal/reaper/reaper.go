//go:build linux

// Package reaper is the process-wide SIGCHLD dispatcher. It is the only
// mutable process-global state in this module: a single lock-protected
// pid -> waiter map, created at package init and fed by a SIGCHLD handler
// that Ensure installs on first use.
//
// A child's termination status must never be observed before the fork that
// produced it has returned, so initialization here always happens before the
// Spawner's fork, never lazily from inside the SIGCHLD path.
package reaper

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Status is the decoded outcome of a terminated child, spec's
// TerminationStatus: exactly one of Exited or Signaled.
type Status struct {
	exited   bool
	code     int
	signaled bool
	signal   unix.Signal
}

// Exited reports the exit code and true if the child exited normally.
func (s Status) Exited() (code int, ok bool) {
	return s.code, s.exited
}

// Signaled reports the terminating signal and true if the child was killed
// by a signal.
func (s Status) Signaled() (sig unix.Signal, ok bool) {
	return s.signal, s.signaled
}

func (s Status) String() string {
	if s.exited {
		return fmt.Sprintf("exited(%d)", s.code)
	}
	if s.signaled {
		return fmt.Sprintf("signaled(%s)", s.signal)
	}
	return "unknown"
}

// decode converts a raw wait status into a Status. Stopped/continued events
// are not terminal and are reported back via the second return value.
func decode(ws unix.WaitStatus) (Status, bool) {
	switch {
	case ws.Exited():
		return Status{exited: true, code: ws.ExitStatus()}, true
	case ws.Signaled():
		return Status{signaled: true, signal: ws.Signal()}, true
	default:
		return Status{}, false
	}
}

// entry is the WaiterState of spec §4.3: either a pending waiter channel, or
// an already-arrived status with no waiter yet, under the package mutex.
// Exactly one of the two fields is populated at any time.
type entry struct {
	waiter chan Status
	status *Status
}

// dispatcher is the process-wide singleton this package exposes: one
// instantiated object holding the waiter map, its mutex, the one-shot
// installer, and the logger, rather than a handful of independent package
// vars. The package-level functions below are thin wrappers that forward to
// it — there is exactly one instance for the lifetime of the process, which
// is what spec §4.3 calls for ("a process-singleton that observes child-
// termination signals"), expressed as a singleton object instead of loose
// globals.
type dispatcher struct {
	mu      sync.Mutex
	waiters map[int]*entry

	installOnce sync.Once
	log         *zap.Logger
}

var proc = &dispatcher{
	waiters: make(map[int]*entry),
	log:     zap.NewNop(),
}

// SetLogger wires a logger into the reaper's dispatch path. Must be called,
// if at all, before the first spawn: the dispatch goroutine reads the
// logger field without synchronization once installed.
func SetLogger(l *zap.Logger) {
	if l != nil {
		proc.log = l.Named("reaper")
	}
}

// Ensure installs the process-wide SIGCHLD handler exactly once. Spec §3
// invariant: "a successful spawn implies the Reaper has been initialized
// before the fork" — the root package's spawn calls this before forking,
// never after.
func Ensure() {
	proc.installOnce.Do(func() {
		ch := make(chan os.Signal, 64)
		signal.Notify(ch, unix.SIGCHLD)
		go proc.dispatch(ch)
		proc.log.Debug("reaper installed")
	})
}

// dispatch is the dedicated goroutine that turns SIGCHLD deliveries into map
// mutations. Draining in a loop per signal is required because multiple
// terminations can coalesce into one delivered SIGCHLD.
func (d *dispatcher) dispatch(ch <-chan os.Signal) {
	for range ch {
		d.reapOnce()
	}
}

func (d *dispatcher) reapOnce() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return
		case err != nil:
			d.log.Warn("wait4 failed", zap.Error(err))
			return
		case pid <= 0:
			return
		}

		status, terminal := decode(ws)
		if !terminal {
			// Stopped or continued: not a termination event, keep draining.
			continue
		}

		d.mu.Lock()
		e, exists := d.waiters[pid]
		switch {
		case exists && e.waiter != nil:
			e.waiter <- status
			delete(d.waiters, pid)
		case exists:
			// A status is already sitting here; spec §3 says exactly one
			// TerminationStatus is ever produced per child, so this branch
			// should be unreachable — keep the first status, log the anomaly.
			d.log.Error("duplicate termination for pid", zap.Int("pid", pid))
		default:
			s := status
			d.waiters[pid] = &entry{status: &s}
		}
		d.mu.Unlock()

		d.log.Debug("reaped child", zap.Int("pid", pid), zap.String("status", status.String()))
	}
}

// WaitFor suspends until pid's termination status is available, rendezvousing
// with whichever order the SIGCHLD dispatch arrives in relative to this call.
// Returns an error only in the contract-violation case of a second WaitFor
// for the same still-outstanding pid.
func WaitFor(pid int) (Status, error) {
	proc.mu.Lock()
	if e, ok := proc.waiters[pid]; ok {
		if e.status != nil {
			delete(proc.waiters, pid)
			proc.mu.Unlock()
			return *e.status, nil
		}
		proc.mu.Unlock()
		return Status{}, fmt.Errorf("reaper: pid %d already has an outstanding waiter", pid)
	}
	ch := make(chan Status, 1)
	proc.waiters[pid] = &entry{waiter: ch}
	proc.mu.Unlock()

	return <-ch, nil
}

// Discard spins a goroutine that waits for pid and drops the result,
// preventing the waiter map from retaining an entry forever for children the
// caller never intends to wait on (spec §6 runDetached).
func Discard(pid int) {
	go func() {
		if _, err := WaitFor(pid); err != nil {
			proc.log.Debug("discard wait failed", zap.Int("pid", pid), zap.Error(err))
		}
	}()
}
