//go:build linux

package subexec

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brindlecore/subexec/internal/xerrors"
)

func TestRunCapturedEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdout, stderr, status, err := RunCaptured(ctx, Request{
		Path: "/bin/echo",
		Args: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("RunCaptured: %v", err)
	}
	if code, ok := status.Exited(); !ok || code != 0 {
		t.Fatalf("got %v, want Exited(0)", status)
	}
	if string(stdout) != "hello\n" {
		t.Fatalf("stdout = %q, want %q", stdout, "hello\n")
	}
	if len(stderr) != 0 {
		t.Fatalf("stderr = %q, want empty", stderr)
	}
}

func TestRunCapturedExitCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdout, stderr, status, err := RunCaptured(ctx, Request{
		Path: "/bin/sh",
		Args: []string{"-c", "exit 7"},
	})
	if err != nil {
		t.Fatalf("RunCaptured: %v", err)
	}
	if code, ok := status.Exited(); !ok || code != 7 {
		t.Fatalf("got %v, want Exited(7)", status)
	}
	if len(stdout) != 0 || len(stderr) != 0 {
		t.Fatalf("expected both outputs empty, got stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestRunCapturedSignaled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, status, err := RunCaptured(ctx, Request{
		Path: "/bin/sh",
		Args: []string{"-c", "kill -TERM $$"},
	})
	if err != nil {
		t.Fatalf("RunCaptured: %v", err)
	}
	sig, ok := status.Signaled()
	if !ok {
		t.Fatalf("got %v, want Signaled", status)
	}
	if sig.String() == "" {
		t.Fatal("expected a named signal")
	}
}

func TestRunExecutableNotFound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, _, err := RunCaptured(ctx, Request{Path: "/does/not/exist"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !xerrors.Is(err, xerrors.ExecutableNotFound) {
		t.Fatalf("got %v, want ExecutableNotFound", err)
	}
}

func TestConcurrentSpawnsAllComplete(t *testing.T) {
	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _, status, err := RunCaptured(ctx, Request{Path: "/bin/true"})
			if err != nil {
				errs <- err
				return
			}
			if code, ok := status.Exited(); !ok || code != 0 {
				errs <- fmt.Errorf("got %v, want Exited(0)", status)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("spawn failed: %v", err)
		}
	}
}

func TestStdoutConsumedTwicePanics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := Run(ctx, Request{
		Path:   "/bin/echo",
		Args:   []string{"hi"},
		Stdout: Piped(),
	}, func(e *Execution) (struct{}, error) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic on second Stdout() call")
			}
		}()
		e.Stdout()
		e.Stdout()
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStdoutAndStderrGatedIndependently(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := Run(ctx, Request{
		Path:   "/bin/echo",
		Args:   []string{"hi"},
		Stdout: Piped(),
		Stderr: Piped(),
	}, func(e *Execution) (struct{}, error) {
		out := e.Stdout()
		defer out.Close()
		errf := e.Stderr() // must not panic: stderr has its own gate
		defer errf.Close()
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}
