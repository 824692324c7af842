//go:build linux

package spawner

import (
	"github.com/brindlecore/subexec/internal/xerrors"
	"golang.org/x/sys/unix"
)

// Credentials is spec §3's Credentials entity: immutable for the duration of
// a single spawn, applied in the child between fork and exec, never mutating
// the parent's own credentials.
type Credentials struct {
	UID            *uint32
	GID            *uint32
	Groups         []uint32 // supplementary group ids; nil leaves them unset
	NoSetGroups    bool
	ProcessGroupID int // join this pgid; 0 means "don't"
	CreateSession  bool
	// PreExecHook is never invoked, and Validate does not reject a non-nil
	// hook: setting it has no effect on the child. See DESIGN.md's "open
	// questions" entry — the Go runtime is not fork-safe for arbitrary
	// closures in the child past the point the runtime hands control back.
	PreExecHook func() error
}

// Validate enforces spec §6's mutual exclusion: createSession implies its
// own process group, so specifying an explicit ProcessGroupID at the same
// time is a configuration error, not a silent override.
func (c Credentials) Validate() error {
	if c.CreateSession && c.ProcessGroupID != 0 {
		return xerrors.New(xerrors.InvalidConfiguration, "validate-credentials", errMutuallyExclusive)
	}
	return nil
}

var errMutuallyExclusive = errInvalidConfig("createSession and processGroupID are mutually exclusive")

type errInvalidConfig string

func (e errInvalidConfig) Error() string { return string(e) }

// sysProcAttr materializes the syscall-level attributes implementing the
// ordering spec §4.2 calls for: supplementary groups and gid/uid are set
// while still privileged (handled by unix.Credential itself, which ForkExec's
// child-side code applies as setgroups -> setgid -> setuid in that fixed
// order), and
// session creation and an explicit process group are mutually exclusive
// (already validated by Validate above).
//
// unix.ForkExec applies the whole Credential struct whenever it is non-nil:
// leaving a field at its Go zero value does not mean "leave unchanged", it
// means "force to zero". So a Credential is built only once we know we need
// one, and every field that the caller did not set is defaulted to the
// parent's own current value rather than left at zero — a lone GID must
// never force setuid(0), and a lone UID must never force setgroups([]).
func (c Credentials) sysProcAttr() *unix.SysProcAttr {
	attr := &unix.SysProcAttr{}

	if c.UID != nil || c.GID != nil || c.Groups != nil || c.NoSetGroups {
		cred := &unix.Credential{
			Uid: uint32(unix.Getuid()),
			Gid: uint32(unix.Getgid()),
		}
		if c.UID != nil {
			cred.Uid = *c.UID
		}
		if c.GID != nil {
			cred.Gid = *c.GID
		}
		switch {
		case c.NoSetGroups:
			cred.NoSetGroups = true
		case c.Groups != nil:
			cred.Groups = append([]uint32(nil), c.Groups...)
		default:
			// Caller never populated Groups: leave supplementary groups
			// alone rather than forcing setgroups([]) on every spawn that
			// only asked to change UID or GID.
			cred.NoSetGroups = true
		}
		attr.Credential = cred
	}

	switch {
	case c.CreateSession:
		attr.Setsid = true
	case c.ProcessGroupID != 0:
		attr.Setpgid = true
		attr.Pgid = c.ProcessGroupID
	default:
		// Isolate into a fresh process group by default so a Terminate()
		// can signal the whole group rather than just the direct child.
		attr.Setpgid = true
	}

	return attr
}
