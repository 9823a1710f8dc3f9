package loader

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

func loadText(path string, doc *domain.Document) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrUnreadableDocument, doc.Source)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	doc.AddSpan(text, 0)
	return nil
}
