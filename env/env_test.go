package env

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/util"
	"github.com/stretchr/testify/require"
)

func TestGenericEnvFiles(t *testing.T) {
	dir := t.TempDir()
	e := DefaultEnv()

	name := filepath.Join(dir, "a.wal")
	f, err := e.NewWritableFile(name)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	require.True(t, e.FileExists(name))
	size, err := e.GetFileSize(name)
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)

	r, err := e.NewRandomAccessFile(name)
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = r.ReadAt(buf, 2)
	require.NoError(t, err)
	require.Equal(t, "llo", string(buf))
	require.NoError(t, r.Close())

	all, err := util.ReadFile(e, name)
	require.NoError(t, err)
	require.Equal(t, "hello", string(all))

	require.NoError(t, e.RenameFile(name, filepath.Join(dir, "b.wal")))
	children, err := e.GetChildren(dir)
	require.NoError(t, err)
	sort.Strings(children)
	require.Equal(t, []string{"b.wal"}, children)

	require.NoError(t, e.RemoveFile(filepath.Join(dir, "b.wal")))
	require.False(t, e.FileExists(name))
}

func TestRandomRWFile(t *testing.T) {
	e := DefaultEnv()
	name := filepath.Join(t.TempDir(), "s.wmr")

	f, err := e.NewRandomRWFile(name)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("slot1"), 20)
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 20)
	require.NoError(t, err)
	require.Equal(t, "slot1", string(buf))
	require.NoError(t, f.Close())
}

func TestCreateDirExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "wal")
	e := DefaultEnv()
	require.NoError(t, e.CreateDir(dir))
	require.NoError(t, e.CreateDir(dir))
}

func TestFreeSpace(t *testing.T) {
	free, err := DefaultEnv().FreeSpace(t.TempDir())
	require.NoError(t, err)
	require.Greater(t, free, int64(0))
}

func TestLockFile(t *testing.T) {
	e := DefaultEnv()
	name := filepath.Join(t.TempDir(), "s.lock")

	lock, err := e.LockFile(name)
	require.NoError(t, err)
	require.NoError(t, e.UnlockFile(lock))

	require.ErrorIs(t, e.UnlockFile(struct{}{}), db.ErrInvalidArgument)
}
