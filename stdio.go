//go:build linux

package subexec

import "os"

// dispositionKind tags how one stdio side of a spawn should be wired.
type dispositionKind int

const (
	kindDiscard dispositionKind = iota
	kindFD
	kindPiped
)

// Stdio describes how one side of a child's standard input, output, or
// error is connected, spec §3's StdioDisposition. Build one with NoInput,
// Discard, ReadFrom, WriteTo, or Piped; the zero value behaves like Discard.
type Stdio struct {
	kind            dispositionKind
	fd              *os.File
	closeAfterSpawn bool
}

// NoInput and Discard both route the side to an OS-equivalent of /dev/null.
// They are the same disposition under two names: Discard reads naturally for
// stdout/stderr call sites, NoInput for stdin ones.
func NoInput() Stdio { return Stdio{kind: kindDiscard} }

// Discard routes the side to the OS null device.
func Discard() Stdio { return Stdio{kind: kindDiscard} }

// ReadFrom wires the child's stdin to an already-open file, optionally
// closing it in the parent once the fork has returned.
func ReadFrom(f *os.File, closeAfterSpawn bool) Stdio {
	return Stdio{kind: kindFD, fd: f, closeAfterSpawn: closeAfterSpawn}
}

// WriteTo wires the child's stdout or stderr to an already-open file,
// optionally closing it in the parent once the fork has returned.
func WriteTo(f *os.File, closeAfterSpawn bool) Stdio {
	return Stdio{kind: kindFD, fd: f, closeAfterSpawn: closeAfterSpawn}
}

// Piped allocates a fresh pipe: the parent keeps the end opposite the
// child's, exposed on the returned Execution either as a streaming reader
// (stdout/stderr) or writer (stdin).
func Piped() Stdio { return Stdio{kind: kindPiped} }

// Collect is an alias for Piped documenting intent at call sites that go on
// to use CaptureBoth rather than the raw streaming accessors.
func Collect() Stdio { return Piped() }

// RedirectToSequence is an alias for Piped documenting intent at call sites
// that go on to use the Stdout/Stderr streaming accessors.
func RedirectToSequence() Stdio { return Piped() }
