package loader

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ragchat/internal/domain"
)

var (
	blankRuns = regexp.MustCompile(`\n\s*\n+`)
	spaceRuns = regexp.MustCompile(`[ \t\f\r]+`)
)

func loadHTML(path string, doc *domain.Document) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	defer f.Close()

	page, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	page.Find("script, style, noscript, template").Remove()

	root := page.Find("body")
	if root.Length() == 0 {
		root = page.Selection
	}
	text := spaceRuns.ReplaceAllString(root.Text(), " ")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))
	if title := strings.TrimSpace(page.Find("title").First().Text()); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	doc.AddSpan(text, 0)
	return nil
}
