//go:build linux

package spawner

import (
	"io"
	"os"
	"testing"

	"github.com/brindlecore/subexec/internal/reaper"
	"github.com/brindlecore/subexec/internal/xerrors"
)

func waitExit(t *testing.T, pid int) reaper.Status {
	t.Helper()
	reaper.Ensure()
	status, err := reaper.WaitFor(pid)
	if err != nil {
		t.Fatalf("WaitFor(%d): %v", pid, err)
	}
	return status
}

func TestSpawnEchoExitsZero(t *testing.T) {
	reaper.Ensure()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	res, err := Spawn(Request{
		Argv:   []string{"/bin/echo", "hello"},
		Stdout: w,
	})
	w.Close()
	if err != nil {
		r.Close()
		t.Fatalf("Spawn: %v", err)
	}

	out, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != "hello\n" {
		t.Fatalf("got %q, want %q", out, "hello\n")
	}

	status := waitExit(t, res.Pid)
	if code, ok := status.Exited(); !ok || code != 0 {
		t.Fatalf("got %v, want Exited(0)", status)
	}
}

func TestSpawnExitCodePropagates(t *testing.T) {
	reaper.Ensure()

	res, err := Spawn(Request{Argv: []string{"/bin/sh", "-c", "exit 7"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	status := waitExit(t, res.Pid)
	if code, ok := status.Exited(); !ok || code != 7 {
		t.Fatalf("got %v, want Exited(7)", status)
	}
}

func TestSpawnExecutableNotFound(t *testing.T) {
	reaper.Ensure()

	_, err := Spawn(Request{Argv: []string{"/does/not/exist"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !xerrors.Is(err, xerrors.ExecutableNotFound) {
		t.Fatalf("got %v, want ExecutableNotFound", err)
	}
}

func TestSpawnEmptyArgvIsInvalidConfiguration(t *testing.T) {
	_, err := Spawn(Request{})
	if !xerrors.Is(err, xerrors.InvalidConfiguration) {
		t.Fatalf("got %v, want InvalidConfiguration", err)
	}
}

func TestCredentialsMutualExclusionRejected(t *testing.T) {
	_, err := Spawn(Request{
		Argv: []string{"/bin/true"},
		Credentials: Credentials{
			CreateSession:  true,
			ProcessGroupID: 123,
		},
	})
	if !xerrors.Is(err, xerrors.InvalidConfiguration) {
		t.Fatalf("got %v, want InvalidConfiguration", err)
	}
}
