package prompt

import (
	"unicode/utf8"

	"ragchat/internal/domain"
)

// DefaultSystem instructs the model to stay within the retrieved context.
const DefaultSystem = "You are an assistant for question-answering tasks. " +
	"Use only the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. " +
	"Use three sentences maximum and keep the answer concise."

// noContextSystem is appended when retrieval found nothing.
const noContextSystem = " No relevant context was found for this question, so say that the documents provided do not contain the answer."

// RunesPerToken is the heuristic used to turn a token budget into text length.
const RunesPerToken = 4

// Assembler builds generation prompts from retrieval results.
type Assembler struct {
	system       string
	maxTokens    int
	historyTurns int
}

// New creates an assembler. An empty system text uses DefaultSystem.
func New(system string, maxContextTokens, historyTurns int) *Assembler {
	if system == "" {
		system = DefaultSystem
	}
	if maxContextTokens <= 0 {
		maxContextTokens = 3000
	}
	if historyTurns < 0 {
		historyTurns = 0
	}
	return &Assembler{system: system, maxTokens: maxContextTokens, historyTurns: historyTurns}
}

// Assemble keeps retriever order, drops the lowest-ranked passages first when
// the budget is exceeded and truncates the best passage if it alone is too long.
func (a *Assembler) Assemble(question string, results domain.RetrievalResult, history []domain.Exchange) domain.Prompt {
	p := domain.Prompt{
		System:   a.system,
		Question: question,
		History:  a.recent(history),
	}
	if len(results) == 0 {
		p.System += noContextSystem
		return p
	}

	budget := a.maxTokens * RunesPerToken
	used := 0
	for i, res := range results {
		text := res.Chunk.Text
		n := utf8.RuneCountInString(text)
		if used+n > budget {
			if i > 0 {
				break
			}
			text = string([]rune(text)[:budget])
			n = budget
		}
		used += n
		p.Context = append(p.Context, domain.Passage{
			Source: res.Chunk.Source,
			Page:   res.Chunk.Page,
			Text:   text,
			Score:  res.Score,
		})
	}
	p.Grounded = len(p.Context) > 0
	if !p.Grounded {
		p.System += noContextSystem
	}
	return p
}

func (a *Assembler) recent(history []domain.Exchange) []domain.Exchange {
	if a.historyTurns == 0 || len(history) == 0 {
		return nil
	}
	// One turn is a question and its answer.
	n := 2 * a.historyTurns
	if n > len(history) {
		n = len(history)
	}
	return append([]domain.Exchange(nil), history[len(history)-n:]...)
}
