package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// loadPDF extracts one span per page that has text. The pdf package panics on some
// malformed content streams, so extraction runs under recover.
func loadPDF(ctx context.Context, path string, doc *domain.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			doc.Spans = nil
			err = fmt.Errorf("%w: malformed pdf: %v", domain.ErrUnreadableDocument, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return fmt.Errorf("%w: %s is encrypted", domain.ErrUnreadableDocument, doc.Source)
		}
		return fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages == 0 {
		return fmt.Errorf("%w: %s has no pages", domain.ErrUnreadableDocument, doc.Source)
	}
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return fmt.Errorf("%w: page %d: %v", domain.ErrUnreadableDocument, i, err)
		}
		// Text objects start with a newline; pages without text are skipped.
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		doc.AddSpan(text, i)
	}
	return nil
}
