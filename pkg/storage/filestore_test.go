package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(afero.NewMemMapFs(), "/data")
}

func TestFileStoreGlobIsNotRecursive(t *testing.T) {
	store := newMemStore(t)
	require.NoError(t, store.WriteFileAtomic("logs/app.log", []byte("a"), 0o644))
	require.NoError(t, store.WriteFileAtomic("logs/old/app.log", []byte("bb"), 0o644))
	require.NoError(t, store.WriteFileAtomic("logs/notes.txt", []byte("ccc"), 0o644))

	files, err := store.Glob("logs", "*.log")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join("/data", "logs", "app.log"), files[0].Path)

	all, err := store.Glob("logs", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestFileStoreWalkAndDirSize(t *testing.T) {
	store := newMemStore(t)
	require.NoError(t, store.WriteFileAtomic("uploads/a.jpg", bytes.Repeat([]byte("x"), 10), 0o644))
	require.NoError(t, store.WriteFileAtomic("uploads/nested/b.jpg", bytes.Repeat([]byte("y"), 5), 0o644))

	files, err := store.Walk("uploads")
	require.NoError(t, err)
	require.Len(t, files, 2)

	size, err := store.DirSize("uploads")
	require.NoError(t, err)
	require.Equal(t, int64(15), size)

	missing, err := store.Walk("nope")
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestFileStoreWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	store := newMemStore(t)
	require.NoError(t, store.WriteFileAtomic("state/rec.json", []byte(`[1]`), 0o600))
	require.NoError(t, store.WriteFileAtomic("state/rec.json", []byte(`[1,2]`), 0o600))

	data, err := store.ReadFile("state/rec.json")
	require.NoError(t, err)
	require.Equal(t, `[1,2]`, string(data))

	files, err := store.Walk("state")
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestFileStoreMoveAndRemove(t *testing.T) {
	store := newMemStore(t)
	n, err := store.SaveStream("temp/upload.bin", bytes.NewBufferString("payload"))
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	require.NoError(t, store.Move("temp/upload.bin", "uploads/rc_file.bin"))
	ok, err := store.Exists("temp/upload.bin")
	require.NoError(t, err)
	require.False(t, ok)

	info, err := store.Stat("uploads/rc_file.bin")
	require.NoError(t, err)
	require.Equal(t, int64(7), info.Size)

	require.NoError(t, store.Remove("uploads/rc_file.bin"))
	require.NoError(t, store.Remove("uploads/rc_file.bin"))
}

func TestFileStoreStatReportsModTime(t *testing.T) {
	store := newMemStore(t)
	require.NoError(t, store.WriteFileAtomic("cache/item", []byte("1"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Fs().Chtimes(store.Path("cache/item"), old, old))

	info, err := store.Stat("cache/item")
	require.NoError(t, err)
	require.WithinDuration(t, old, info.ModTime, time.Second)

	_, err = store.Stat("cache/missing")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStatfsProbeReadsTempDir(t *testing.T) {
	usage, err := StatfsProbe{}.Usage(t.TempDir())
	require.NoError(t, err)
	require.Greater(t, usage.Total, int64(0))
	require.GreaterOrEqual(t, usage.Total, usage.Available)
}
