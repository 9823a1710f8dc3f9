package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/generator"
	"ragchat/internal/logger"
	"ragchat/internal/prompt"
	"ragchat/internal/retriever"
	"ragchat/internal/vectorstore"
)

// Assistant is the surface offered to the terminal and HTTP front ends.
type Assistant interface {
	Ingest(ctx context.Context, path string) (IngestReport, error)
	Ask(ctx context.Context, question string) (Answer, error)
	Clear(ctx context.Context) error
}

// Deps are the components a knowledge base is built from.
type Deps struct {
	Loader    domain.Loader
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Store     vectorstore.Storage
	Generator domain.Generator
	Prompt    *prompt.Assembler
	Logger    *slog.Logger
}

// IngestReport describes one successfully ingested document.
type IngestReport struct {
	Path       string        `json:"path"`
	Source     string        `json:"source"`
	DocumentID string        `json:"document_id"`
	Chunks     int           `json:"chunks"`
	Pages      int           `json:"pages"`
	Duration   time.Duration `json:"duration"`
}

// Answer is the result of Ask.
type Answer struct {
	Text     string                 `json:"text"`
	Sources  domain.RetrievalResult `json:"sources"`
	Grounded bool                   `json:"grounded"`
	Duration time.Duration          `json:"duration"`
}

// Stats is a point-in-time summary of a knowledge base.
type Stats struct {
	State     domain.State `json:"state"`
	Documents int          `json:"documents"`
	Chunks    int          `json:"chunks"`
	Exchanges int          `json:"exchanges"`
	Embedder  string       `json:"embedder"`
	Generator string       `json:"generator"`
}

// Option customises a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithRetrieval sets how many chunks are retrieved and the minimum score.
func WithRetrieval(topK int, threshold float64) Option {
	return func(kb *KnowledgeBase) {
		kb.topK = topK
		kb.threshold = threshold
	}
}

// WithBatch sets embedding parallelism for ingest.
func WithBatch(opts embedding.BatchOptions) Option {
	return func(kb *KnowledgeBase) { kb.batch = opts }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(kb *KnowledgeBase) { kb.tracer = t }
}

// KnowledgeBase owns one vector index and the conversation held against it.
//
// mu orders index mutations, the search step of Ask and conversation
// changes. Loading, embedding and generation run outside it. Every Clear
// bumps epoch so that an Ask that searched before the clear does not write
// into the new conversation.
type KnowledgeBase struct {
	loader    domain.Loader
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     vectorstore.Storage
	generator domain.Generator
	assembler *prompt.Assembler
	retriever *retriever.Retriever
	log       *slog.Logger
	tracer    trace.Tracer

	topK      int
	threshold float64
	batch     embedding.BatchOptions

	mu           sync.RWMutex
	state        domain.State
	epoch        uint64
	documents    int
	conversation []domain.Exchange
}

func New(deps Deps, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		loader:    deps.Loader,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		store:     deps.Store,
		generator: deps.Generator,
		assembler: deps.Prompt,
		log:       logger.OrDiscard(deps.Logger),
		tracer:    otel.Tracer("ragchat/knowledgebase"),
		topK:      3,
		batch:     embedding.BatchOptions{Concurrency: 1, BatchSize: 1},
		state:     domain.StateEmpty,
	}
	for _, opt := range opts {
		opt(kb)
	}
	if kb.assembler == nil {
		kb.assembler = prompt.New("", 0, 0)
	}
	kb.retriever = retriever.New(kb.embedder, readLocked{Storage: kb.store, mu: &kb.mu}, kb.topK, kb.threshold)
	return kb
}

// readLocked gives the retriever index reads that exclude Insert and Clear
// while leaving query embedding outside the lock.
type readLocked struct {
	vectorstore.Storage
	mu *sync.RWMutex
}

func (r readLocked) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Storage.Search(ctx, vector, topK)
}

func (r readLocked) Len(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Storage.Len(ctx)
}

// Ingest loads, chunks and embeds one file and adds it to the index.
// Nothing is inserted unless every chunk was embedded.
func (kb *KnowledgeBase) Ingest(ctx context.Context, path string) (IngestReport, error) {
	ctx, span := kb.tracer.Start(ctx, "knowledgebase.Ingest", trace.WithAttributes(attribute.String("document.path", path)))
	defer span.End()
	start := time.Now()

	report, err := kb.ingest(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		kb.log.Warn("ingest failed", "path", path, "error", err)
		return IngestReport{}, err
	}
	report.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("document.chunks", report.Chunks), attribute.Int("document.pages", report.Pages))
	kb.log.Info("document ingested", "source", report.Source, "chunks", report.Chunks, "pages", report.Pages, "duration", report.Duration)
	return report, nil
}

func (kb *KnowledgeBase) ingest(ctx context.Context, path string) (IngestReport, error) {
	doc, err := kb.loader.Load(ctx, path)
	if err != nil {
		return IngestReport{}, err
	}
	chunks, err := kb.chunker.Chunk(doc)
	if err != nil {
		return IngestReport{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.EmbedAll(ctx, kb.embedder, texts, kb.batch)
	if err != nil {
		return IngestReport{}, err
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}
	if err := ctx.Err(); err != nil {
		return IngestReport{}, err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if err := kb.store.Insert(ctx, chunks); err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return IngestReport{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		return IngestReport{}, fmt.Errorf("index insert: %w", err)
	}
	kb.state = domain.StateReady
	kb.documents++

	return IngestReport{
		Path:       path,
		Source:     doc.Source,
		DocumentID: doc.ID,
		Chunks:     len(chunks),
		Pages:      pageCount(doc),
	}, nil
}

// IngestAll ingests paths one after another. A failing path does not stop
// the rest; all failures are joined into the returned error.
func (kb *KnowledgeBase) IngestAll(ctx context.Context, paths []string) ([]IngestReport, error) {
	var (
		reports []IngestReport
		errs    []error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := kb.Ingest(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		reports = append(reports, r)
	}
	return reports, errors.Join(errs...)
}

// Ask answers a question from the indexed documents. On an empty knowledge
// base the embedder is not called and the no-context path is used.
func (kb *KnowledgeBase) Ask(ctx context.Context, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, domain.ErrEmptyQuestion
	}
	ctx, span := kb.tracer.Start(ctx, "knowledgebase.Ask")
	defer span.End()
	start := time.Now()

	ans, err := kb.ask(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		kb.log.Warn("ask failed", "error", err)
		return Answer{}, err
	}
	ans.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("retrieval.results", len(ans.Sources)), attribute.Bool("answer.grounded", ans.Grounded))
	kb.log.Info("question answered", "results", len(ans.Sources), "grounded", ans.Grounded, "duration", ans.Duration)
	return ans, nil
}

func (kb *KnowledgeBase) ask(ctx context.Context, question string) (Answer, error) {
	kb.mu.RLock()
	epoch := kb.epoch
	kb.mu.RUnlock()

	results, err := kb.retriever.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	p := kb.assembler.Assemble(question, results, kb.Conversation())
	text, err := kb.generator.Generate(ctx, p)
	if err != nil {
		return Answer{}, generator.Failed(kb.generator.Name(), err)
	}

	kb.mu.Lock()
	if kb.epoch == epoch {
		now := time.Now()
		kb.conversation = append(kb.conversation,
			domain.Exchange{Speaker: domain.SpeakerUser, Text: question, At: now},
			domain.Exchange{Speaker: domain.SpeakerAssistant, Text: text, At: now},
		)
	}
	kb.mu.Unlock()

	return Answer{Text: text, Sources: results, Grounded: p.Grounded}, nil
}

// Clear empties the index and the conversation together. It is idempotent.
func (kb *KnowledgeBase) Clear(ctx context.Context) error {
	ctx, span := kb.tracer.Start(ctx, "knowledgebase.Clear")
	defer span.End()

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if err := kb.store.Clear(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("index clear: %w", err)
	}
	kb.conversation = nil
	kb.documents = 0
	kb.state = domain.StateEmpty
	kb.epoch++
	kb.log.Info("knowledge base cleared")
	return nil
}

func (kb *KnowledgeBase) State() domain.State {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.state
}

// Conversation returns a copy of the exchanges since the last clear.
func (kb *KnowledgeBase) Conversation() []domain.Exchange {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]domain.Exchange(nil), kb.conversation...)
}

func (kb *KnowledgeBase) Stats(ctx context.Context) (Stats, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	n, err := kb.store.Len(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("index size: %w", err)
	}
	return Stats{
		State:     kb.state,
		Documents: kb.documents,
		Chunks:    n,
		Exchanges: len(kb.conversation),
		Embedder:  kb.embedder.Name(),
		Generator: kb.generator.Name(),
	}, nil
}

// pageCount is the number of distinct pages, 1 for unpaginated documents.
func pageCount(doc domain.Document) int {
	pages := map[int]struct{}{}
	for _, s := range doc.Spans {
		if s.Page > 0 {
			pages[s.Page] = struct{}{}
		}
	}
	if len(pages) == 0 {
		return 1
	}
	return len(pages)
}
