//go:build linux

// Package spawner converts a resolved request into a running child: resolve
// the executable, materialize argv/envp, apply credentials, and transition
// from fork to exec in one call.
//
// The actual fork/exec step is golang.org/x/sys/unix.ForkExec rather than a
// hand-rolled fork(2)+dup2(2)+execve(2) sequence: the Go runtime's goroutine
// scheduler and signal handling make a bespoke fork-then-run-arbitrary-code
// child path unsafe between fork and exec, and ForkExec already implements
// the same close-on-exec error pipe this design calls for internally.
package spawner

import (
	"errors"
	"os"

	"github.com/brindlecore/subexec/internal/xerrors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Request is the parent-side inputs to a single spawn: an already-resolved
// set of stdio ends (nil means "discard to /dev/null"), ownership of which
// stays with the caller on every path, spawn success or failure alike.
type Request struct {
	Argv        []string
	Env         []string // nil means "inherit": snapshot os.Environ() at spawn time
	Dir         string
	Credentials Credentials
	Stdin       *os.File
	Stdout      *os.File
	Stderr      *os.File
	// Log receives this spawn's lifecycle trail. There is no long-lived
	// spawner object to construct with a logger the way processmgr.process
	// is (Spawn is a one-shot call, not an instantiated supervisor), so the
	// logger travels with the Request itself. A nil Log is treated as
	// zap.NewNop().
	Log *zap.Logger
}

// Result is what a successful spawn hands back.
type Result struct {
	Pid int
}

// Spawn implements spec §4.2: resolve path, materialize argv/envp, determine
// whether a chdir is needed, validate and translate credentials, then fork
// and exec. Every error is mapped to one of internal/xerrors' kinds.
func Spawn(req Request) (Result, error) {
	log := req.Log
	if log == nil {
		log = zap.NewNop()
	}

	if len(req.Argv) == 0 {
		return Result{}, xerrors.New(xerrors.InvalidConfiguration, "spawn", errEmptyArgv)
	}
	if err := req.Credentials.Validate(); err != nil {
		log.Warn("invalid credentials", zap.Strings("argv", req.Argv), zap.Error(err))
		return Result{}, err
	}

	env := req.Env
	if env == nil {
		env = os.Environ()
	}

	path, err := resolvePath(req.Argv[0], env)
	if err != nil {
		log.Debug("path resolution failed", zap.String("argv0", req.Argv[0]), zap.Error(err))
		return Result{}, err
	}

	dir := req.Dir
	if dir != "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil && sameDir(cwd, dir) {
			dir = ""
		}
	}

	stdin, closeStdin, err := fileOrDevNull(req.Stdin, os.O_RDONLY)
	if err != nil {
		return Result{}, xerrors.New(xerrors.IOFailure, "spawn-open-stdin", err)
	}
	defer closeStdin()

	stdout, closeStdout, err := fileOrDevNull(req.Stdout, os.O_WRONLY)
	if err != nil {
		return Result{}, xerrors.New(xerrors.IOFailure, "spawn-open-stdout", err)
	}
	defer closeStdout()

	stderr, closeStderr, err := fileOrDevNull(req.Stderr, os.O_WRONLY)
	if err != nil {
		return Result{}, xerrors.New(xerrors.IOFailure, "spawn-open-stderr", err)
	}
	defer closeStderr()

	attr := &unix.ProcAttr{
		Dir: dir,
		Env: env,
		Files: []uintptr{
			stdin.Fd(),
			stdout.Fd(),
			stderr.Fd(),
		},
		Sys: req.Credentials.sysProcAttr(),
	}

	pid, err := unix.ForkExec(path, req.Argv, attr)
	if err != nil {
		mapped := mapSpawnError(err)
		log.Error("fork/exec failed", zap.String("path", path), zap.Error(mapped))
		return Result{}, mapped
	}

	log.Info("process started", zap.String("path", path), zap.Int("pid", pid))
	return Result{Pid: pid}, nil
}

// fileOrDevNull returns f unchanged with a no-op closer, or a freshly opened
// /dev/null with a closer the caller must run once the fork has returned (the
// child holds its own reference via dup2 inside ForkExec by the time we get
// to close it).
func fileOrDevNull(f *os.File, flag int) (*os.File, func(), error) {
	if f != nil {
		return f, func() {}, nil
	}
	null, err := os.OpenFile(os.DevNull, flag, 0)
	if err != nil {
		return nil, func() {}, err
	}
	return null, func() { null.Close() }, nil
}

func sameDir(a, b string) bool {
	ai, aerr := os.Stat(a)
	bi, berr := os.Stat(b)
	if aerr != nil || berr != nil {
		return a == b
	}
	return os.SameFile(ai, bi)
}

// mapSpawnError translates an error surfaced by ForkExec (either from the
// pre-fork setup or decoded off the child's error pipe) into spec §7's error
// kinds.
func mapSpawnError(err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ENOENT:
			return xerrors.New(xerrors.ExecutableNotFound, "spawn", err)
		case unix.EACCES, unix.EPERM:
			return xerrors.New(xerrors.PermissionDenied, "spawn", err)
		case unix.EMFILE, unix.ENFILE, unix.ENOMEM, unix.EAGAIN:
			return xerrors.New(xerrors.ResourceExhausted, "spawn", err)
		}
	}
	return xerrors.New(xerrors.SpawnFailed, "spawn", err)
}

var errEmptyArgv = errString("argv must contain at least one element")
