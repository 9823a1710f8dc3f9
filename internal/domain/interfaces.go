package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Span is one unit of raw text extracted from a document.
// Page is 1-based for paginated formats and 0 otherwise.
// Offset is the rune offset of the span inside Document.Content().
type Span struct {
	Text   string
	Page   int
	Offset int
}

// SpanSeparator joins spans when a document is flattened for chunking.
const SpanSeparator = "\n\n"

// Document represents a single file loaded into the system.
type Document struct {
	ID     string
	Source string
	Spans  []Span
}

// AddSpan appends text for the given page and records its offset.
func (d *Document) AddSpan(text string, page int) {
	offset := 0
	if n := len(d.Spans); n > 0 {
		last := d.Spans[n-1]
		offset = last.Offset + utf8.RuneCountInString(last.Text) + utf8.RuneCountInString(SpanSeparator)
	}
	d.Spans = append(d.Spans, Span{Text: text, Page: page, Offset: offset})
}

// Content returns the concatenated text of all spans.
func (d Document) Content() string {
	parts := make([]string, len(d.Spans))
	for i, s := range d.Spans {
		parts[i] = s.Text
	}
	return strings.Join(parts, SpanSeparator)
}

// PageAt returns the page of the span containing the given rune offset.
func (d Document) PageAt(offset int) int {
	page := 0
	for _, s := range d.Spans {
		if s.Offset > offset {
			break
		}
		page = s.Page
	}
	return page
}

// Chunk is a bounded passage of a document used for indexing.
// Start and End are rune offsets into the owning Document.Content().
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Page       int       `json:"page,omitempty"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Vector     []float32 `json:"-"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []SearchResult

// Speaker identifies who produced an exchange.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Exchange is one turn of the session conversation.
type Exchange struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// State of a knowledge base.
type State string

const (
	StateEmpty State = "EMPTY"
	StateReady State = "READY"
)

// Loader extracts text spans from a file on disk.
type Loader interface {
	Load(ctx context.Context, path string) (Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a fixed-dimension vector.
// Dimension returns 0 when it is only known after the first call.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a natural-language answer for an assembled prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}
