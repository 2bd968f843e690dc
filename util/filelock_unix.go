//go:build linux || darwin

package util

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

type FileLock struct {
	f    *os.File
	name string
}

// fcntl locks are per process, so locks held by this process are tracked
// here as well.
var (
	lockedMu    sync.Mutex
	lockedFiles = make(map[string]struct{})
)

// LockFile takes an exclusive, non-blocking fcntl lock on name, creating the
// file if needed.
func LockFile(name string) (*FileLock, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}

	lockedMu.Lock()
	defer lockedMu.Unlock()
	if _, ok := lockedFiles[abs]; ok {
		return nil, errors.Newf("lock %s: already held by this process", name)
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "lock %s", name)
	}
	lockedFiles[abs] = struct{}{}
	return &FileLock{f: f, name: abs}, nil
}

func UnlockFile(l *FileLock) error {
	lockedMu.Lock()
	delete(lockedFiles, l.name)
	lockedMu.Unlock()

	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func lockFile(f *os.File) error {
	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
		Start:  0,
		Len:    0, // whole file
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lock)
}

func unlockFile(f *os.File) error {
	lock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: io.SeekStart,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lock)
}
