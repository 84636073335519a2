package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github/itish2003/convrag/models"
)

// SetPDFLicense registers the UniDoc metered key. Without it PDF extraction
// fails.
func SetPDFLicense(key string) error {
	if key == "" {
		slog.Warn("no UniDoc license key configured, PDF extraction will fail", "component", "extractor")
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("failed to set UniDoc license key: %w", err)
	}
	return nil
}

// ExtractDocuments loads a file into documents tagged with the file path as
// source. Text and markdown become one document, CSV one document per row,
// HTML the text of its body, PDF one document per page.
func ExtractDocuments(ctx context.Context, path string) ([]models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return extractPDFPages(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var loader documentloaders.Loader
	switch ext {
	case ".txt", ".md":
		loader = documentloaders.NewText(f)
	case ".csv":
		loader = documentloaders.NewCSV(f)
	case ".html", ".htm":
		loader = documentloaders.NewHTML(f)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}

	loaded, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return toDocuments(path, loaded), nil
}

func toDocuments(source string, loaded []schema.Document) []models.Document {
	docs := make([]models.Document, 0, len(loaded))
	for _, d := range loaded {
		meta := maps.Clone(d.Metadata)
		if meta == nil {
			meta = make(map[string]any)
		}
		meta[models.MetaSource] = source
		docs = append(docs, models.Document{Content: d.PageContent, Metadata: meta})
	}
	return docs
}

// extractPDFPages uses UniPDF to get the text of every page.
func extractPDFPages(path string) ([]models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		docs = append(docs, models.Document{
			Content:  text,
			Metadata: map[string]any{models.MetaSource: path, models.MetaPage: i},
		})
	}
	return docs, nil
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".csv", ".html", ".htm", ".pdf":
		return true
	default:
		return false
	}
}
