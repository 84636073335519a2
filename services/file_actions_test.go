package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileActions_SaveAndDelete(t *testing.T) {
	fa, err := NewFileActions(filepath.Join(t.TempDir(), "docs"))
	require.NoError(t, err)

	path, err := fa.SaveFile("france.txt", strings.NewReader("The capital of France is Paris."))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fa.DocsDir, "france.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "The capital of France is Paris.", string(data))

	_, err = fa.SaveFile("france.txt", strings.NewReader("replaced"))
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	entries, err := os.ReadDir(fa.DocsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	deleted, err := fa.DeleteFile("france.txt")
	require.NoError(t, err)
	assert.Equal(t, path, deleted)
	assert.NoFileExists(t, path)
}

func TestFileActions_RejectsBadNames(t *testing.T) {
	fa, err := NewFileActions(t.TempDir())
	require.NoError(t, err)

	_, err = fa.SaveFile("../../etc/passwd.txt", strings.NewReader("x"))
	require.NoError(t, err, "directory parts are stripped")
	assert.FileExists(t, filepath.Join(fa.DocsDir, "passwd.txt"))

	_, err = fa.SaveFile("tool.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = fa.SaveFile(".hidden.txt", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = fa.DeleteFile("missing.txt")
	assert.Error(t, err)

	_, err = NewFileActions("")
	assert.Error(t, err)
}
