//go:build linux

// Package subexec spawns child processes with precisely controlled stdio,
// credentials, and session state; reaps their termination asynchronously
// through a process-wide SIGCHLD dispatcher; and drains stdout/stderr
// concurrently so neither side can deadlock the other.
//
// Run is the general entry point: it spawns a Request, hands the caller an
// Execution to interact with while the child is alive, and returns once
// both the caller's body and the child's termination have been observed.
// RunCaptured is a convenience wrapper over Run that captures both outputs
// in full; RunDetached spawns without Run and returns the pid at once, for
// fire-and-forget children.
//
//	stdout, stderr, status, err := subexec.RunCaptured(ctx, subexec.Request{
//		Path: "/bin/echo",
//		Args: []string{"hello"},
//	})
package subexec
