//go:build linux

package subexec

import "github.com/brindlecore/subexec/internal/spawner"

// Credentials controls the uid/gid/supplementary groups and process-group or
// session state applied to the child between fork and exec. The zero value
// leaves the process's own credentials untouched and puts the child in a
// fresh process group of its own, so Terminate can always reach it.
type Credentials = spawner.Credentials

// Request is a validated description of a process to spawn, consumed once by
// Run, RunCaptured, or RunDetached.
type Request struct {
	// Path is the executable: an absolute path or a path containing a
	// separator is used verbatim, a bare name is searched across PATH.
	Path string
	// Args are the arguments following argv[0]; argv[0] is always Path.
	Args []string
	// Env, if nil, inherits a snapshot of the parent's environment taken at
	// spawn time. Later mutations to the parent's environment never affect
	// an already-spawned child.
	Env []string
	// Dir is the child's working directory; empty means inherit the
	// parent's. No chdir syscall is issued when Dir equals the current
	// directory.
	Dir string
	// Credentials is applied in the child before exec.
	Credentials Credentials
	// Stdin, Stdout, Stderr select how each stdio side is wired.
	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio
}

func (r Request) argv() []string {
	argv := make([]string, 0, len(r.Args)+1)
	argv = append(argv, r.Path)
	argv = append(argv, r.Args...)
	return argv
}
