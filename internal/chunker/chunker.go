package chunker

import (
	"fmt"
	"unicode"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

// Kind names a chunking strategy.
type Kind string

const (
	KindWindow    Kind = "window"
	KindSentence  Kind = "sentence"
	KindRecursive Kind = "recursive"
)

// Options are shared by every chunking strategy.
type Options struct {
	MaxChunkSize      int
	Overlap           int
	SentencesPerChunk int
	OverlapSentences  int
}

// New returns the chunker for the given strategy.
func New(kind Kind, opts Options) (domain.Chunker, error) {
	switch kind {
	case KindWindow, "":
		return NewWindowChunker(opts.MaxChunkSize, opts.Overlap), nil
	case KindSentence:
		return NewSentenceChunker(opts.SentencesPerChunk, opts.OverlapSentences, opts.MaxChunkSize), nil
	case KindRecursive:
		return NewRecursiveChunker(opts.MaxChunkSize, opts.Overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunker type %q", kind)
	}
}

// normalizeSize clamps size and overlap to usable values.
// An overlap that would stall the window is reduced to a quarter of the size.
func normalizeSize(size, overlap int) (int, int) {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// trimRange shrinks [start, end) so it neither begins nor ends with whitespace.
func trimRange(runes []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return start, end
}

// builder accumulates chunks for one document.
type builder struct {
	doc    domain.Document
	runes  []rune
	chunks []domain.Chunk
}

func newBuilder(doc domain.Document) (*builder, error) {
	runes := []rune(doc.Content())
	if isBlank(runes) {
		return nil, fmt.Errorf("%w: %s has no text", domain.ErrEmptyDocument, doc.Source)
	}
	return &builder{doc: doc, runes: runes}, nil
}

// add appends the trimmed range as a chunk. Empty ranges are skipped.
func (b *builder) add(start, end int) {
	start, end = trimRange(b.runes, start, end)
	if start >= end {
		return
	}
	b.chunks = append(b.chunks, domain.Chunk{
		ID:         uuid.NewString(),
		DocumentID: b.doc.ID,
		Source:     b.doc.Source,
		Index:      len(b.chunks),
		Text:       string(b.runes[start:end]),
		Page:       b.doc.PageAt(start),
		Start:      start,
		End:        end,
	})
}
