//go:build linux

package spawner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/brindlecore/subexec/internal/xerrors"
	"v.io/x/lib/lookpath"
)

// resolvePath implements spec §4.2 step 1: an absolute path, or any path
// already containing a separator, is used verbatim; a bare name is searched
// across PATH. Grounded on vanadium-go.lib/gosh's newCmd, which applies the
// identical filepath.Base(name) == name test before calling lookpath.Look.
func resolvePath(path string, env []string) (string, error) {
	if path == "" {
		return "", xerrors.New(xerrors.ExecutableNotFound, "resolve-path", errEmptyPath)
	}
	if filepath.Base(path) != path {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", xerrors.New(xerrors.ExecutableNotFound, "resolve-path", err)
			}
			if os.IsPermission(err) {
				return "", xerrors.New(xerrors.PermissionDenied, "resolve-path", err)
			}
			return "", xerrors.New(xerrors.ExecutableNotFound, "resolve-path", err)
		}
		return path, nil
	}

	resolved, err := lookpath.Look(envToMap(env), path)
	if err != nil {
		return "", xerrors.New(xerrors.ExecutableNotFound, "resolve-path", err)
	}
	return resolved, nil
}

func envToMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			// Duplicate keys: last occurrence wins at child visibility (spec §8).
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

type errString string

func (e errString) Error() string { return string(e) }

const errEmptyPath = errString("empty executable path")
