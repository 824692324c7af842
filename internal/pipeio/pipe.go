// Package pipeio owns the stdio pipe pairs used to wire a spawned child's
// standard input, output, and error to its parent. It guarantees that every
// fd it allocates is closed exactly once on every exit path, fork success or
// failure alike.
package pipeio

import (
	"os"
	"sync"
)

// Owner is a move-only handle around an *os.File: Close is idempotent and
// Release hands the file to a new owner without closing it, mirroring the
// "move-only owner whose destructor closes it" pattern called for by the
// spawn design.
type Owner struct {
	mu sync.Mutex
	f  *os.File
}

// NewOwner wraps f for single-close ownership. f may be nil.
func NewOwner(f *os.File) *Owner {
	return &Owner{f: f}
}

// Close closes the owned file if it is still held. Safe to call more than
// once and safe to call on a nil receiver.
func (o *Owner) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return nil
	}
	err := o.f.Close()
	o.f = nil
	return err
}

// Release hands the file to the caller and forgets it; a subsequent Close is
// a no-op. Used when ownership transfers to the child (conceptually) or to a
// caller that takes over lifecycle management (e.g. the Execution Controller
// handing a stream to user code).
func (o *Owner) Release() *os.File {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.f
	o.f = nil
	return f
}

// File returns the currently owned file without transferring ownership, or
// nil if it has already been released or closed.
func (o *Owner) File() *os.File {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.f
}

// Pipe is one os-level pipe pair, tagged with which end belongs to the
// parent (kept open across the fork/exec boundary) and which belongs to the
// child (closed in the parent immediately after a successful spawn).
type Pipe struct {
	Parent *Owner
	Child  *Owner
}

// NewParentReads allocates a pipe whose read end stays in the parent and
// whose write end is handed to the child (used for the child's stdout and
// stderr).
func NewParentReads() (Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return Pipe{}, err
	}
	return Pipe{Parent: NewOwner(r), Child: NewOwner(w)}, nil
}

// NewParentWrites allocates a pipe whose write end stays in the parent and
// whose read end is handed to the child (used for the child's stdin).
func NewParentWrites() (Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return Pipe{}, err
	}
	return Pipe{Parent: NewOwner(w), Child: NewOwner(r)}, nil
}

// CloseParentEnds closes every pipe's child-destined end. Call exactly once,
// immediately after a successful fork, regardless of whether exec itself
// later fails (the error-pipe protocol surfaces that failure separately).
func CloseParentEnds(pipes ...Pipe) {
	for _, p := range pipes {
		p.Child.Close()
	}
}

// CloseAll closes both ends of every pipe. Idempotent: safe to call on pipes
// whose child ends were already closed by CloseParentEnds, and safe to call
// more than once on the same Pipe values. Used on spawn failure and on
// Execution destruction.
func CloseAll(pipes ...Pipe) {
	for _, p := range pipes {
		p.Parent.Close()
		p.Child.Close()
	}
}
