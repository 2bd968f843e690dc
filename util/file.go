package util

import (
	"io"

	"github.com/ls4154/gowal/db"
)

// ReadFile reads the whole of a small file through env.
func ReadFile(env db.Env, name string) ([]byte, error) {
	size, err := env.GetFileSize(name)
	if err != nil {
		return nil, err
	}
	f, err := env.NewRandomAccessFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, int64(size)), data); err != nil {
		return nil, err
	}
	return data, nil
}
