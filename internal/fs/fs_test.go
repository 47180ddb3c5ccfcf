package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	data, err := lfs.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	renamed := filepath.Join(dir, "renamed.txt")
	require.NoError(t, lfs.Rename(fpath, renamed))

	info, err := lfs.Stat(renamed)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	require.NoError(t, lfs.Remove(renamed))
	_, err = lfs.Stat(renamed)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LAYOUT")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("v1"), 0o644))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("v2"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic_Faults(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
	}{
		{"open", Fault{FailOnOpen: true}},
		{"write", Fault{FailOnWrite: true}},
		{"sync", Fault{FailOnSync: true}},
		{"rename", Fault{FailOnRename: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "LAYOUT")
			require.NoError(t, WriteFileAtomic(Default, path, []byte("old"), 0o644))

			ffs := NewFaultyFS(nil)
			ffs.AddRule("LAYOUT", tt.fault)

			err := WriteFileAtomic(ffs, path, []byte("new"), 0o644)
			assert.ErrorIs(t, err, ErrInjected)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(data))

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFaultyFS_ClearRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LAYOUT")

	ffs := NewFaultyFS(nil)
	ffs.AddRule("LAYOUT", Fault{FailOnSync: true})
	require.Error(t, WriteFileAtomic(ffs, path, []byte("x"), 0o644))

	ffs.ClearRules()
	require.NoError(t, WriteFileAtomic(ffs, path, []byte("x"), 0o644))
}
