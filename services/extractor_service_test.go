package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/convrag/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractDocuments_Text(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "notes.md"} {
		path := writeFile(t, dir, name, "# France\n\nThe capital of France is Paris.")
		docs, err := ExtractDocuments(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Contains(t, docs[0].Content, "Paris")
		assert.Equal(t, path, docs[0].SourceID())
		assert.Nil(t, docs[0].Page())
	}
}

func TestExtractDocuments_CSVRowPerDocument(t *testing.T) {
	path := writeFile(t, t.TempDir(), "capitals.csv", "country,capital\nFrance,Paris\nGermany,Berlin\n")

	docs, err := ExtractDocuments(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].Content, "Paris")
	assert.Contains(t, docs[1].Content, "Berlin")
	for _, d := range docs {
		assert.Equal(t, path, d.Metadata[models.MetaSource])
	}
}

func TestExtractDocuments_HTML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "page.html",
		"<html><head><title>t</title></head><body><h1>France</h1><p>The capital is Paris.</p></body></html>")

	docs, err := ExtractDocuments(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "The capital is Paris.")
	assert.NotContains(t, docs[0].Content, "<p>")
}

func TestExtractDocuments_Unsupported(t *testing.T) {
	path := writeFile(t, t.TempDir(), "image.png", "not really")
	_, err := ExtractDocuments(context.Background(), path)
	assert.Error(t, err)

	_, err = ExtractDocuments(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestIsSupportedFile(t *testing.T) {
	for _, p := range []string{"a.txt", "b.MD", "c.csv", "d.html", "e.htm", "f.pdf"} {
		assert.True(t, isSupportedFile(p), p)
	}
	for _, p := range []string{"a.go", "b", "c.docx"} {
		assert.False(t, isSupportedFile(p), p)
	}
}
