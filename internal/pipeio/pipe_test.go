package pipeio

import (
	"io"
	"testing"
)

func TestNewParentReadsRoundTrip(t *testing.T) {
	p, err := NewParentReads()
	if err != nil {
		t.Fatalf("NewParentReads: %v", err)
	}
	defer CloseAll(p)

	childEnd := p.Child.File()
	if _, err := childEnd.WriteString("hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	childEnd.Close()

	got, err := io.ReadAll(p.Parent.File())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestNewParentWritesRoundTrip(t *testing.T) {
	p, err := NewParentWrites()
	if err != nil {
		t.Fatalf("NewParentWrites: %v", err)
	}
	defer CloseAll(p)

	if _, err := p.Parent.File().WriteString("world"); err != nil {
		t.Fatalf("write: %v", err)
	}
	p.Parent.Close()

	got, err := io.ReadAll(p.Child.File())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("got %q, want %q", got, "world")
	}
}

func TestOwnerCloseIdempotent(t *testing.T) {
	p, err := NewParentReads()
	if err != nil {
		t.Fatalf("NewParentReads: %v", err)
	}
	if err := p.Parent.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Parent.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
	CloseAll(p)
}

func TestOwnerReleaseForgetsFile(t *testing.T) {
	p, err := NewParentReads()
	if err != nil {
		t.Fatalf("NewParentReads: %v", err)
	}
	defer p.Child.Close()

	f := p.Parent.Release()
	if f == nil {
		t.Fatal("Release returned nil")
	}
	if got := p.Parent.File(); got != nil {
		t.Fatalf("expected owner to forget file after Release, got %v", got)
	}
	if err := p.Parent.Close(); err != nil {
		t.Fatalf("close after release should be a no-op, got: %v", err)
	}
	f.Close()
}

func TestCloseParentEndsThenCloseAllIsSafe(t *testing.T) {
	p, err := NewParentReads()
	if err != nil {
		t.Fatalf("NewParentReads: %v", err)
	}
	CloseParentEnds(p)
	CloseAll(p) // must not double-close p.Parent or panic on the already-closed Child
}

func TestNilOwnerMethodsAreNoops(t *testing.T) {
	var o *Owner
	if err := o.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	if f := o.Release(); f != nil {
		t.Fatalf("nil Release: got %v, want nil", f)
	}
	if f := o.File(); f != nil {
		t.Fatalf("nil File: got %v, want nil", f)
	}
}
