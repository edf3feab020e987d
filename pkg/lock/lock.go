// Package lock serializes fleet-wide mutating operations across fleetctl
// invocations with an advisory flock on a file in the state dir.
package lock

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var ErrLocked = errors.New("another fleet operation is in progress")

type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the exclusive lock at path without blocking. When another
// invocation holds it, the returned error wraps ErrLocked and names the
// holder's pid if it was recorded.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir lock dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(f)
		_ = f.Close()
		if stderrors.Is(err, unix.EWOULDBLOCK) {
			if holder != "" {
				return nil, errors.Wrapf(ErrLocked, "held by pid %s", holder)
			}
			return nil, ErrLocked
		}
		return nil, errors.Wrap(err, "flock")
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, f: f}, nil
}

func (l *Lock) Path() string { return l.path }

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return errors.Wrap(err, "unlock")
	}
	return cerr
}

func readHolder(f *os.File) string {
	b := make([]byte, 32)
	n, _ := f.ReadAt(b, 0)
	return strings.TrimSpace(string(b[:n]))
}
