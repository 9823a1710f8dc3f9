package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"ragchat/internal/domain"
)

// RecursiveChunker splits on paragraphs, then lines, then words until every
// piece fits the size limit.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(size, overlap int) *RecursiveChunker {
	size, overlap = normalizeSize(size, overlap)
	return &RecursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	b, err := newBuilder(document)
	if err != nil {
		return nil, err
	}
	content := string(b.runes)
	pieces, err := c.splitter.SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", document.Source, err)
	}

	// Pieces come back in order; each is located at or after the previous
	// piece's start so offsets stay monotonic.
	searchFrom := 0
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		at := strings.Index(content[searchFrom:], piece)
		var start int
		if at < 0 {
			start = utf8.RuneCountInString(content[:searchFrom])
		} else {
			start = utf8.RuneCountInString(content[:searchFrom+at])
			searchFrom += at + 1
			for searchFrom < len(content) && !utf8.RuneStart(content[searchFrom]) {
				searchFrom++
			}
		}
		end := start + utf8.RuneCountInString(piece)
		if end > len(b.runes) {
			end = len(b.runes)
		}
		b.add(start, end)
	}
	return b.chunks, nil
}
