package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDirCheck_Healthy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	require.NoError(t, os.Mkdir(dir, 0o700))

	result := NewStoreDirCheck(dir, false).Run(context.Background())

	assert.Equal(t, "Session Directory", result.Name)
	require.Len(t, result.Items, 2)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "writable", result.Items[0].Detail)
	assert.Equal(t, StatusPass, result.Items[1].Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be cleaned up")
}

func TestStoreDirCheck_WorldReadable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	require.NoError(t, os.Mkdir(dir, 0o700))
	require.NoError(t, os.Chmod(dir, 0o755))

	result := NewStoreDirCheck(dir, false).Run(context.Background())

	require.Len(t, result.Items, 2)
	assert.Equal(t, "permissions", result.Items[1].Label)
	assert.Equal(t, StatusWarn, result.Items[1].Status)
}

func TestStoreDirCheck_Missing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	result := NewStoreDirCheck(dir, false).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusWarn, result.Items[0].Status)
	assert.True(t, result.Items[0].Fixable)
	assert.Contains(t, result.Items[0].Detail, "does not exist")

	result = NewStoreDirCheck(dir, true).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "created", result.Items[0].Detail)
	assert.DirExists(t, dir)
}

func TestStoreDirCheck_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(path, []byte("test"), 0o644))

	result := NewStoreDirCheck(path, true).Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFail, result.Items[0].Status)
	assert.Contains(t, result.Items[0].Detail, "not a directory")
}
