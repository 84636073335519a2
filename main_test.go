package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/convrag/config"
	"github/itish2003/convrag/models"
	"github/itish2003/convrag/vectorindex"
)

func TestParseTurns(t *testing.T) {
	h, err := parseTurns([]string{"What is the capital of France?=>Paris", "And Germany?=>Berlin => obviously"})
	require.NoError(t, err)
	require.Equal(t, 2, h.Len())
	last, _ := h.Last()
	assert.Equal(t, models.Turn{Question: "And Germany?", Answer: "Berlin => obviously"}, last)

	for _, bad := range []string{"no separator", "=>answer only", "question only=>"} {
		_, err := parseTurns([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestOpenIndex(t *testing.T) {
	ctx := context.Background()
	m := vectorindex.Manifest{EmbeddingModel: "m", Dimension: 3}

	idx, err := openIndex(ctx, config.IndexConfig{Backend: "memory"}, m)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	idx, err = openIndex(ctx, config.IndexConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "index.db")}, m)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = openIndex(ctx, config.IndexConfig{Backend: "faiss"}, m)
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestInitConfigCommand(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "convrag.yaml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "init-config"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Chunker, cfg.Chunker)
}
