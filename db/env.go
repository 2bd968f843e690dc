package db

import "io"

type Env interface {
	NewRandomAccessFile(name string) (RandomAccessFile, error)
	NewWritableFile(name string) (WritableFile, error)
	// NewDirectWritableFile opens name for unbuffered writes. Every write
	// must be block aligned in offset, length and memory.
	NewDirectWritableFile(name string) (WritableFile, error)
	NewRandomRWFile(name string) (RandomRWFile, error)
	RemoveFile(name string) error
	RenameFile(src, target string) error
	FileExists(name string) bool
	GetFileSize(name string) (uint64, error)
	// FreeSpace returns the bytes available to unprivileged users on the
	// volume holding path.
	FreeSpace(path string) (int64, error)

	GetChildren(path string) ([]string, error)
	CreateDir(name string) error

	LockFile(name string) (FileLock, error)
	UnlockFile(lock FileLock) error
}

type RandomAccessFile interface {
	io.ReaderAt
	io.Closer
}

type WritableFile interface {
	io.Writer
	io.Closer
	Sync() error
}

type RandomRWFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

type FileLock interface{}
