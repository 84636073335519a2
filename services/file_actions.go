package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFile is returned for uploads no loader can read.
var ErrUnsupportedFile = errors.New("unsupported file type")

// FileActions stores uploaded documents in the documents directory.
type FileActions struct {
	DocsDir string // absolute path of the documents directory
}

// NewFileActions creates the directory if needed.
func NewFileActions(dir string) (*FileActions, error) {
	if dir == "" {
		return nil, errors.New("documents directory not configured")
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", absPath, err)
	}
	return &FileActions{DocsDir: absPath}, nil
}

// sanitizeFilename keeps the file inside the documents directory.
func (fa *FileActions) sanitizeFilename(filename string) (string, error) {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if !isSupportedFile(base) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(base))
	}
	cleanPath := filepath.Join(fa.DocsDir, base)
	if !strings.HasPrefix(cleanPath, fa.DocsDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid filename %q, attempts to escape documents directory", filename)
	}
	return cleanPath, nil
}

// SaveFile writes r to the documents directory under filename, replacing any
// previous file of that name, and returns the stored path.
func (fa *FileActions) SaveFile(filename string, r io.Reader) (string, error) {
	path, err := fa.sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(fa.DocsDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file '%s': %w", filename, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file '%s': %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store file '%s': %w", filename, err)
	}
	return path, nil
}

// DeleteFile removes filename from the documents directory and returns the
// path it had.
func (fa *FileActions) DeleteFile(filename string) (string, error) {
	path, err := fa.sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to delete file '%s': %w", filename, err)
	}
	return path, nil
}
