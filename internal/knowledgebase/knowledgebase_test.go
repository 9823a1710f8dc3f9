package knowledgebase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/generator/extractive"
	"ragchat/internal/loader"
	"ragchat/internal/loader/loadertest"
	"ragchat/internal/prompt"
	"ragchat/internal/vectorstore/memory"
)

type countingEmbedder struct {
	inner domain.Embedder
	calls atomic.Int32
	fail  atomic.Bool
}

func (e *countingEmbedder) Name() string   { return e.inner.Name() }
func (e *countingEmbedder) Dimension() int { return e.inner.Dimension() }

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail.Load() {
		return nil, errors.New("provider down")
	}
	return e.inner.Embed(ctx, text)
}

type stubGenerator struct {
	err     error
	release chan struct{}
	started chan struct{}
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	if g.started != nil {
		close(g.started)
	}
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return "", g.err
	}
	return "answer to " + p.Question, nil
}

type fixture struct {
	kb       *KnowledgeBase
	embedder *countingEmbedder
	store    *memory.Storage
	dir      string
}

func newFixture(t *testing.T, gen domain.Generator) *fixture {
	t.Helper()
	if gen == nil {
		gen = extractive.New(3)
	}
	ch, err := chunker.New(chunker.KindWindow, chunker.Options{MaxChunkSize: 60, Overlap: 10})
	require.NoError(t, err)
	emb := &countingEmbedder{inner: hashing.NewEmbedder(256)}
	store := memory.NewStorage(0)
	kb := New(Deps{
		Loader:    loader.New(0, nil),
		Chunker:   ch,
		Embedder:  emb,
		Store:     store,
		Generator: gen,
		Prompt:    prompt.New("", 500, 0),
	}, WithRetrieval(2, 0), WithBatch(embedding.BatchOptions{Concurrency: 4, BatchSize: 1}))
	return &fixture{kb: kb, embedder: emb, store: store, dir: t.TempDir()}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) chunks(t *testing.T) int {
	t.Helper()
	n, err := f.store.Len(context.Background())
	require.NoError(t, err)
	return n
}

const zoo = "Cats are mammals that purr. Dogs are mammals that bark. Rocks are not alive. Volcanoes erupt lava."

func TestIngestPDFKeepsPages(t *testing.T) {
	f := newFixture(t, nil)
	path := filepath.Join(f.dir, "manual.pdf")
	require.NoError(t, os.WriteFile(path, loadertest.PDF(2,
		"The reactor must be cooled continuously.",
		"Operators log every reading twice.",
	), 0o644))

	report, err := f.kb.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)

	ans, err := f.kb.Ask(context.Background(), "Is every reading logged twice?")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Sources)
	top := ans.Sources[0].Chunk
	assert.Equal(t, "manual.pdf", top.Source)
	assert.Contains(t, top.Text, "reading twice.")
	assert.Equal(t, 2, top.Page)
}

func TestAskOnEmptyKnowledgeBaseIsUngrounded(t *testing.T) {
	f := newFixture(t, nil)
	ans, err := f.kb.Ask(context.Background(), "What is in the document?")
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, extractive.NoAnswer, ans.Text)
	assert.Zero(t, f.embedder.calls.Load())
	assert.Equal(t, domain.StateEmpty, f.kb.State())
}

func TestAskAfterClearSkipsEmbedder(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.kb.Ingest(context.Background(), f.write(t, "zoo.txt", zoo))
	require.NoError(t, err)
	require.NoError(t, f.kb.Clear(context.Background()))
	f.embedder.calls.Store(0)

	ans, err := f.kb.Ask(context.Background(), "Do cats purr?")
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Zero(t, f.embedder.calls.Load())
}

func TestIngestThenAsk(t *testing.T) {
	f := newFixture(t, nil)
	path := f.write(t, "zoo.txt", zoo)

	report, err := f.kb.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "zoo.txt", report.Source)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, report.Chunks, f.chunks(t))
	assert.Greater(t, report.Chunks, 1)
	assert.Equal(t, domain.StateReady, f.kb.State())

	ans, err := f.kb.Ask(context.Background(), "Do cats purr?")
	require.NoError(t, err)
	assert.True(t, ans.Grounded)
	require.NotEmpty(t, ans.Sources)
	assert.Contains(t, ans.Sources[0].Chunk.Text, "Cats")
	assert.Contains(t, ans.Text, "Cats are mammals that purr.")
	assert.True(t, sort.SliceIsSorted(ans.Sources, func(i, j int) bool {
		return ans.Sources[i].Score > ans.Sources[j].Score
	}))

	conv := f.kb.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, domain.SpeakerUser, conv[0].Speaker)
	assert.Equal(t, "Do cats purr?", conv[0].Text)
	assert.Equal(t, ans.Text, conv[1].Text)
}

func TestIngestIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.kb.Ingest(context.Background(), f.write(t, "a.txt", zoo))
	require.NoError(t, err)
	before := f.chunks(t)

	_, err = f.kb.Ingest(context.Background(), f.write(t, "b.md", "# Birds\n\nPenguins live in the southern hemisphere."))
	require.NoError(t, err)
	assert.Greater(t, f.chunks(t), before)

	stats, err := f.kb.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, f.chunks(t), stats.Chunks)
	assert.Equal(t, "hashing", stats.Embedder)
}

func TestClearIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.kb.Clear(context.Background()))
	assert.Equal(t, domain.StateEmpty, f.kb.State())

	_, err := f.kb.Ingest(context.Background(), f.write(t, "zoo.txt", zoo))
	require.NoError(t, err)
	_, err = f.kb.Ask(context.Background(), "Do dogs bark?")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.kb.Clear(context.Background()))
		assert.Equal(t, domain.StateEmpty, f.kb.State())
		assert.Zero(t, f.chunks(t))
		assert.Empty(t, f.kb.Conversation())
	}

	ans, err := f.kb.Ask(context.Background(), "Do dogs bark?")
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
}

func TestFailedIngestLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.kb.Ingest(context.Background(), f.write(t, "zoo.txt", zoo))
	require.NoError(t, err)
	before := f.chunks(t)

	_, err = f.kb.Ingest(context.Background(), filepath.Join(f.dir, "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)

	_, err = f.kb.Ingest(context.Background(), f.write(t, "blank.txt", "  \n\t "))
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)

	f.embedder.fail.Store(true)
	_, err = f.kb.Ingest(context.Background(), f.write(t, "more.txt", "Penguins live in the south."))
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	assert.Equal(t, before, f.chunks(t))
	assert.Equal(t, domain.StateReady, f.kb.State())
}

func TestFailedIngestOnEmptyStaysEmpty(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.kb.Ingest(context.Background(), f.write(t, "data.bin", "binary"))
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)
	assert.Equal(t, domain.StateEmpty, f.kb.State())
}

func TestCanceledIngestInsertsNothing(t *testing.T) {
	f := newFixture(t, nil)
	path := f.write(t, "zoo.txt", zoo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.kb.Ingest(ctx, path)
	require.Error(t, err)
	assert.Zero(t, f.chunks(t))
	assert.Equal(t, domain.StateEmpty, f.kb.State())
}

func TestAskFailuresLeaveConversationUnchanged(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model crashed")}
	f := newFixture(t, gen)
	_, err := f.kb.Ingest(context.Background(), f.write(t, "zoo.txt", zoo))
	require.NoError(t, err)

	_, err = f.kb.Ask(context.Background(), "Do cats purr?")
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Empty(t, f.kb.Conversation())

	f.embedder.fail.Store(true)
	_, err = f.kb.Ask(context.Background(), "Do cats purr?")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Empty(t, f.kb.Conversation())
}

func TestEmptyQuestion(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := f.kb.Ask(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	}
	assert.Empty(t, f.kb.Conversation())
}

func TestDeterministicAnswers(t *testing.T) {
	answer := func() Answer {
		f := newFixture(t, nil)
		_, err := f.kb.Ingest(context.Background(), f.write(t, "zoo.txt", zoo))
		require.NoError(t, err)
		ans, err := f.kb.Ask(context.Background(), "are cats mammals?")
		require.NoError(t, err)
		return ans
	}
	first, second := answer(), answer()
	assert.Equal(t, first.Text, second.Text)
	require.Equal(t, len(first.Sources), len(second.Sources))
	for i := range first.Sources {
		assert.Equal(t, first.Sources[i].Chunk.Text, second.Sources[i].Chunk.Text)
		assert.Equal(t, first.Sources[i].Score, second.Sources[i].Score)
	}
}

func TestIngestAllContinuesPastFailures(t *testing.T) {
	f := newFixture(t, nil)
	good := f.write(t, "zoo.txt", zoo)
	missing := filepath.Join(f.dir, "missing.txt")
	other := f.write(t, "birds.txt", "Penguins live in the southern hemisphere.")

	reports, err := f.kb.IngestAll(context.Background(), []string{good, missing, other})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)
	assert.Contains(t, err.Error(), "missing.txt")
	require.Len(t, reports, 2)
	assert.Equal(t, "zoo.txt", reports[0].Source)
	assert.Equal(t, "birds.txt", reports[1].Source)
}

func TestClearDuringAskDoesNotResurrectConversation(t *testing.T) {
	gen := &stubGenerator{release: make(chan struct{}), started: make(chan struct{})}
	f := newFixture(t, gen)
	_, err := f.kb.Ingest(context.Background(), f.write(t, "zoo.txt", zoo))
	require.NoError(t, err)

	var (
		ans    Answer
		askErr error
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ans, askErr = f.kb.Ask(context.Background(), "Do cats purr?")
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generator was not called")
	}
	require.NoError(t, f.kb.Clear(context.Background()))
	close(gen.release)
	wg.Wait()

	require.NoError(t, askErr)
	assert.Equal(t, "answer to Do cats purr?", ans.Text)
	assert.Empty(t, f.kb.Conversation())
	assert.Equal(t, domain.StateEmpty, f.kb.State())
}

func TestConcurrentIngestAndAsk(t *testing.T) {
	f := newFixture(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		path := f.write(t, "doc"+strings.Repeat("x", i)+".txt", zoo)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.kb.Ingest(context.Background(), path)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.kb.Ask(context.Background(), "Do cats purr?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	stats, err := f.kb.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Documents)
	assert.Len(t, f.kb.Conversation(), 8)
}

var _ Assistant = (*KnowledgeBase)(nil)
