//go:build linux

package subexec

import (
	"context"
	"errors"
	"os"

	"github.com/brindlecore/subexec/internal/escalation"
	"github.com/brindlecore/subexec/internal/pipeio"
	"github.com/brindlecore/subexec/internal/reaper"
	"github.com/brindlecore/subexec/internal/spawner"
	"github.com/brindlecore/subexec/internal/xerrors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// defaults holds process-wide state for this package the same way reaper's
// and escalation's own singletons do: one instantiated object carrying the
// logger used for spawn-time logging, rather than a loose package var.
type defaults struct {
	log *zap.Logger
}

var lib = &defaults{log: zap.NewNop()}

// SetLogger wires a logger into the process-wide reaper and escalation
// loops, and into every Execution spawned afterward. Best called once
// during program startup, before the first spawn: both loops read their
// logger field without synchronization once installed. A nil logger is
// ignored.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	lib.log = l.Named("subexec")
	reaper.SetLogger(l)
	escalation.SetLogger(l)
}

// prepareSide wires one stdio side into a fd the spawner can dup2 into the
// child, returning the pipe it allocated (if Piped) and the parent-side
// owner the Execution will hold.
func prepareSide(d Stdio, parentReads bool) (child *os.File, parent *pipeio.Owner, pipe *pipeio.Pipe, err error) {
	switch d.kind {
	case kindDiscard:
		return nil, nil, nil, nil
	case kindFD:
		return d.fd, nil, nil, nil
	case kindPiped:
		var p pipeio.Pipe
		if parentReads {
			p, err = pipeio.NewParentReads()
		} else {
			p, err = pipeio.NewParentWrites()
		}
		if err != nil {
			return nil, nil, nil, classifyPipeError("allocate-pipe", err)
		}
		return p.Child.File(), p.Parent, &p, nil
	default:
		return nil, nil, nil, nil
	}
}

// classifyPipeError maps an os.Pipe failure to spec §7's error kinds. §4.1's
// failure mode calls out fd exhaustion as the canonical pipe-allocation
// failure, so EMFILE/ENFILE/ENOMEM surface as ResourceExhausted the same way
// internal/spawner's mapSpawnError already does for the post-fork path;
// anything else surfaces as a generic IOFailure.
func classifyPipeError(op string, err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EMFILE, unix.ENFILE, unix.ENOMEM:
			return xerrors.New(xerrors.ResourceExhausted, op, err)
		}
	}
	return xerrors.New(xerrors.IOFailure, op, err)
}

// spawn is the shared core behind Run, RunCaptured, and RunDetached: it
// wires stdio per the three Dispositions, ensures the reaper is installed
// before forking, and unwinds every resource it acquired on failure.
func spawn(req Request) (*Execution, error) {
	reaper.Ensure()

	var allPipes []pipeio.Pipe
	var closeAfter []*os.File

	stdinChild, stdinParent, pipe, err := prepareSide(req.Stdin, false)
	if err != nil {
		return nil, err
	}
	if pipe != nil {
		allPipes = append(allPipes, *pipe)
	} else if req.Stdin.kind == kindFD && req.Stdin.closeAfterSpawn {
		closeAfter = append(closeAfter, req.Stdin.fd)
	}

	stdoutChild, stdoutParent, pipe, err := prepareSide(req.Stdout, true)
	if err != nil {
		pipeio.CloseAll(allPipes...)
		return nil, err
	}
	if pipe != nil {
		allPipes = append(allPipes, *pipe)
	} else if req.Stdout.kind == kindFD && req.Stdout.closeAfterSpawn {
		closeAfter = append(closeAfter, req.Stdout.fd)
	}

	stderrChild, stderrParent, pipe, err := prepareSide(req.Stderr, true)
	if err != nil {
		pipeio.CloseAll(allPipes...)
		return nil, err
	}
	if pipe != nil {
		allPipes = append(allPipes, *pipe)
	} else if req.Stderr.kind == kindFD && req.Stderr.closeAfterSpawn {
		closeAfter = append(closeAfter, req.Stderr.fd)
	}

	result, err := spawner.Spawn(spawner.Request{
		Argv:        req.argv(),
		Env:         req.Env,
		Dir:         req.Dir,
		Credentials: req.Credentials,
		Stdin:       stdinChild,
		Stdout:      stdoutChild,
		Stderr:      stderrChild,
		Log:         lib.log,
	})
	if err != nil {
		pipeio.CloseAll(allPipes...)
		for _, f := range closeAfter {
			f.Close()
		}
		return nil, err
	}

	pipeio.CloseParentEnds(allPipes...)
	for _, f := range closeAfter {
		f.Close()
	}

	id := uuid.New()
	lib.log.Debug("spawned child", zap.String("execution", id.String()), zap.Int("pid", result.Pid))

	return &Execution{
		id:     id,
		pid:    result.Pid,
		log:    lib.log,
		stdin:  stdinParent,
		stdout: stdoutParent,
		stderr: stderrParent,
	}, nil
}

// Run spawns req, passes the Execution to body, and awaits both body and the
// child's termination, returning whatever body returned alongside the
// child's TerminationStatus.
func Run[T any](ctx context.Context, req Request, body func(*Execution) (T, error)) (T, TerminationStatus, error) {
	var zero T

	exec, err := spawn(req)
	if err != nil {
		return zero, TerminationStatus{}, err
	}
	defer exec.Close()

	result, bodyErr := body(exec)

	status, waitErr := exec.Wait(ctx)
	if bodyErr != nil {
		return result, status, bodyErr
	}
	return result, status, waitErr
}

// RunCaptured spawns req with stdin discarded and both stdout and stderr
// piped, and returns both streams captured in full alongside the
// termination status. It is the convenience form of Run whose body is
// "capture both".
func RunCaptured(ctx context.Context, req Request) (stdout, stderr []byte, status TerminationStatus, err error) {
	req.Stdin = NoInput()
	req.Stdout = Collect()
	req.Stderr = Collect()

	result, termStatus, runErr := Run(ctx, req, func(e *Execution) (captured, error) {
		out, errBytes, cerr := e.CaptureBoth(ctx)
		return captured{out, errBytes}, cerr
	})
	return result.stdout, result.stderr, termStatus, runErr
}

type captured struct {
	stdout []byte
	stderr []byte
}

// RunDetached spawns req and returns the child's pid immediately, installing
// no waiter the caller can block on: reaper.Discard waits for the child on a
// background goroutine and drops its termination status rather than
// retaining it, so the caller is never blocked on this child and the
// waiter map never grows unbounded for it. The caller never sees an
// Execution, so any parent-side pipe end a Piped disposition would have
// produced is closed immediately rather than left dangling; Piped only
// makes sense on RunDetached's sides when the caller plans to read the
// child's pid back out of /proc, which this library does not do for them.
func RunDetached(req Request) (pid int, err error) {
	exec, err := spawn(req)
	if err != nil {
		return 0, err
	}
	exec.Close()
	reaper.Discard(exec.pid)
	return exec.pid, nil
}
