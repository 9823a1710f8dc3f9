package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// FileLoader reads documents from disk and extracts their text by file type.
type FileLoader struct {
	maxBytes int64
	log      *slog.Logger
}

// New creates a loader. maxBytes <= 0 disables the size limit.
func New(maxBytes int64, log *slog.Logger) *FileLoader {
	return &FileLoader{maxBytes: maxBytes, log: logger.OrDiscard(log)}
}

// Supported reports whether the loader knows how to read the file at path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case "", ".txt", ".text", ".md", ".markdown", ".pdf", ".html", ".htm":
		return true
	}
	return false
}

// Load extracts the text spans of the file at path.
func (l *FileLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	if info.IsDir() {
		return domain.Document{}, fmt.Errorf("%w: %s is a directory", domain.ErrUnreadableDocument, path)
	}
	if l.maxBytes > 0 && info.Size() > l.maxBytes {
		return domain.Document{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", domain.ErrUnreadableDocument, path, info.Size(), l.maxBytes)
	}

	doc := domain.Document{ID: uuid.NewString(), Source: filepath.Base(path)}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case "", ".txt", ".text", ".md", ".markdown":
		err = loadText(path, &doc)
	case ".pdf":
		err = loadPDF(ctx, path, &doc)
	case ".html", ".htm":
		err = loadHTML(path, &doc)
	default:
		err = fmt.Errorf("%w: unsupported file type %q", domain.ErrUnreadableDocument, ext)
	}
	if err != nil {
		return domain.Document{}, err
	}
	l.log.Debug("document loaded", "source", doc.Source, "spans", len(doc.Spans))
	return doc, nil
}
