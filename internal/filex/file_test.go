package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedDirectory(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "state", "signals")

	got, err := EnsureDir(want)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestEnsureDir_ExistingDirIsFine(t *testing.T) {
	dir := t.TempDir()

	_, err := EnsureDir(dir)
	require.NoError(t, err)
	_, err = EnsureDir(dir)
	require.NoError(t, err)
}

func TestEnsureDir_FailsUnderRegularFile(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := EnsureDir(filepath.Join(file, "sub"))
	require.Error(t, err)
}

func TestEnsureParentDir(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "data", "session.db")

	require.NoError(t, EnsureParentDir(path))

	fi, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signal.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "nope", "f"), []byte("x"), 0o600)
	require.Error(t, err)
}
