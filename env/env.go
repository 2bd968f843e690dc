package env

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/util"
)

type GenericEnv struct{}

var globalEnv = &GenericEnv{}

// DefaultEnv returns the Env backed by the local file system.
func DefaultEnv() *GenericEnv {
	return globalEnv
}

var _ db.Env = (*GenericEnv)(nil)

func (e *GenericEnv) NewRandomAccessFile(name string) (db.RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *GenericEnv) NewWritableFile(name string) (db.WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *GenericEnv) NewDirectWritableFile(name string) (db.WritableFile, error) {
	f, err := openDirect(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *GenericEnv) NewRandomRWFile(name string) (db.RandomRWFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *GenericEnv) RemoveFile(name string) error {
	return os.Remove(name)
}

func (e *GenericEnv) RenameFile(src, target string) error {
	return os.Rename(src, target)
}

func (e *GenericEnv) FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (e *GenericEnv) GetFileSize(name string) (uint64, error) {
	stat, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return uint64(stat.Size()), nil
}

func (e *GenericEnv) FreeSpace(path string) (int64, error) {
	return freeSpace(path)
}

func (e *GenericEnv) GetChildren(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dents, err := f.ReadDir(0)
	if err != nil {
		return nil, err
	}

	children := make([]string, 0, len(dents))
	for _, e := range dents {
		children = append(children, e.Name())
	}
	return children, nil
}

// CreateDir creates name and any missing parents.
func (e *GenericEnv) CreateDir(name string) error {
	return os.MkdirAll(name, 0o755)
}

func (e *GenericEnv) LockFile(name string) (db.FileLock, error) {
	return util.LockFile(name)
}

func (e *GenericEnv) UnlockFile(lock db.FileLock) error {
	l, ok := lock.(*util.FileLock)
	if !ok {
		return errors.Wrapf(db.ErrInvalidArgument, "unexpected lock type %T", lock)
	}
	return util.UnlockFile(l)
}
