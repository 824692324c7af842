//go:build linux

package subexec

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/brindlecore/subexec/internal/escalation"
	"github.com/brindlecore/subexec/internal/pipeio"
	"github.com/brindlecore/subexec/internal/reaper"
	"github.com/brindlecore/subexec/internal/xerrors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// TerminationStatus is the outcome of a terminated child: exactly one of
// Exited or Signaled. Produced exactly once per child by the reaper.
type TerminationStatus = reaper.Status

// Execution is the handle returned by a successful spawn. It owns the
// parent-side ends of whichever stdio sides were piped, and the
// output-consumption gate for stdout and stderr.
//
// An Execution must eventually be closed via Close (Run does this for the
// Execution it hands to body), so that any unconsumed parent-side pipe end
// is released. CaptureBoth closes the stdout and stderr ends it drains; Wait
// closes nothing.
type Execution struct {
	id  uuid.UUID
	pid int
	log *zap.Logger

	stdin  *pipeio.Owner
	stdout *pipeio.Owner
	stderr *pipeio.Owner

	stdoutConsumed atomic.Bool
	stderrConsumed atomic.Bool
}

// ID returns a value unique to this spawn, useful for correlating log lines
// across concurrent Executions.
func (e *Execution) ID() uuid.UUID { return e.id }

// Pid returns the child's process identifier. It remains valid, in the
// sense of being safe to signal, until the child is reaped.
func (e *Execution) Pid() int { return e.pid }

// Stdin returns the writer side of the child's stdin if it was spawned with
// Piped, otherwise nil. Unlike Stdout/Stderr there is no consumption gate:
// input-writer buffering is the caller's responsibility.
func (e *Execution) Stdin() io.WriteCloser {
	f := e.stdin.File()
	if f == nil {
		return nil
	}
	return f
}

// Stdout returns the read side of the child's stdout if it was spawned with
// Piped. Calling it a second time on the same Execution is a contract
// violation and panics: the pipe can only be drained once, and a second
// reader would silently lose bytes already read by the first.
func (e *Execution) Stdout() *os.File {
	if !e.stdoutConsumed.CompareAndSwap(false, true) {
		panic("subexec: stdout stream consumed twice")
	}
	return e.stdout.Release()
}

// Stderr is Stdout's symmetric counterpart, gated on its own bit.
func (e *Execution) Stderr() *os.File {
	if !e.stderrConsumed.CompareAndSwap(false, true) {
		panic("subexec: stderr stream consumed twice")
	}
	return e.stderr.Release()
}

// CaptureBoth drains stdout and stderr concurrently and returns both in
// full. Concurrency is essential: draining one pipe at a time deadlocks
// whenever the child fills the other pipe's kernel buffer before it is
// read. Cancelling ctx cancels both drainers and discards whatever partial
// data each had read; the child itself is not signaled.
func (e *Execution) CaptureBoth(ctx context.Context) (stdout, stderr []byte, err error) {
	g, ctx := errgroup.WithContext(ctx)

	outFile := e.Stdout()
	errFile := e.Stderr()

	g.Go(func() error {
		b, rerr := readAllCtx(ctx, outFile)
		stdout = b
		return rerr
	})
	g.Go(func() error {
		b, rerr := readAllCtx(ctx, errFile)
		stderr = b
		return rerr
	})

	err = g.Wait()
	return stdout, stderr, err
}

func readAllCtx(ctx context.Context, f *os.File) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := io.ReadAll(f)
		ch <- result{b, err}
	}()

	select {
	case r := <-ch:
		f.Close()
		if r.err != nil {
			return r.b, xerrors.New(xerrors.IOFailure, "capture", r.err)
		}
		return r.b, nil
	case <-ctx.Done():
		f.Close() // unblocks the pending read; its result is discarded below
		<-ch
		return nil, ctx.Err()
	}
}

// Wait suspends until the child's termination status is available, or until
// ctx is cancelled first. It also cancels any pending Terminate escalation
// for this pid, since the child has now been observed to have exited.
func (e *Execution) Wait(ctx context.Context) (TerminationStatus, error) {
	type result struct {
		status TerminationStatus
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := reaper.WaitFor(e.pid)
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		escalation.Cancel(e.pid)
		e.log.Debug("child termination observed",
			zap.String("execution", e.id.String()), zap.Int("pid", e.pid), zap.Stringer("status", r.status))
		return r.status, r.err
	case <-ctx.Done():
		return TerminationStatus{}, ctx.Err()
	}
}

// Signal sends sig directly to the child's pid.
func (e *Execution) Signal(sig unix.Signal) error {
	return unix.Kill(e.pid, sig)
}

// Terminate sends SIGTERM to the child's process group and arranges for
// SIGKILL to follow after grace if the child has not exited by then. Call
// Wait to observe the eventual termination; Wait cancels the pending
// escalation once the child is reaped.
func (e *Execution) Terminate(grace time.Duration) error {
	err := unix.Kill(-e.pid, unix.SIGTERM)
	if err != nil {
		e.log.Warn("SIGTERM failed", zap.Int("pid", e.pid), zap.Error(err))
	} else {
		e.log.Debug("sent SIGTERM, scheduling escalation",
			zap.Int("pid", e.pid), zap.Duration("grace", grace))
	}
	escalation.Schedule(e.pid, grace)
	return err
}

// Close releases any parent-side pipe end that was never consumed. Safe to
// call more than once and safe to call after Stdout/Stderr/CaptureBoth have
// already taken ownership of a given side.
func (e *Execution) Close() error {
	e.stdin.Close()
	e.stdout.Close()
	e.stderr.Close()
	return nil
}
