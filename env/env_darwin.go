//go:build darwin

package env

import (
	"os"

	"golang.org/x/sys/unix"
)

// darwin has no O_DIRECT; F_NOCACHE turns off the page cache for the file.
func openDirect(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func freeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
