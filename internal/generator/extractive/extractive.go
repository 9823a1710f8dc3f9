package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"ragchat/internal/domain"
)

// NoAnswer is returned for prompts without retrieved context.
const NoAnswer = "I don't know. The documents provided do not contain information relevant to this question."

// Generator answers by quoting the context sentences that best match the
// question. It needs no model and is fully deterministic.
type Generator struct {
	maxSentences  int
	tokenPattern  *regexp.Regexp
	sentenceSplit *regexp.Regexp
	stopwords     map[string]struct{}
}

// New creates an extractive generator returning at most maxSentences sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Generator{
		maxSentences:  maxSentences,
		tokenPattern:  regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		sentenceSplit: regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`),
		stopwords:     defaultStopwords(),
	}
}

func (g *Generator) Name() string { return "extractive" }

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !prompt.Grounded || len(prompt.Context) == 0 {
		return NoAnswer, nil
	}

	var sentences []string
	for _, p := range prompt.Context {
		for _, s := range g.sentenceSplit.FindAllString(p.Text, -1) {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) == 0 {
		return NoAnswer, nil
	}

	question := g.tokenSet(prompt.Question)
	freq := g.frequencies(sentences)

	type scored struct {
		idx     int
		overlap float64
		weight  float64
	}
	var candidates []scored
	for i, s := range sentences {
		ov := g.ochiai(question, s)
		if ov == 0 {
			continue
		}
		candidates = append(candidates, scored{idx: i, overlap: ov, weight: g.weight(freq, s)})
	}
	if len(candidates) == 0 {
		// Nothing matches the question literally; summarise the best passage.
		return g.summarize(prompt.Context[0].Text, freq), nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].weight > candidates[j].weight
	})
	if len(candidates) > g.maxSentences {
		candidates = candidates[:g.maxSentences]
	}
	picked := make([]int, len(candidates))
	for i, c := range candidates {
		picked[i] = c.idx
	}
	sort.Ints(picked)
	return join(sentences, picked), nil
}

// summarize ranks the sentences of text by normalised word frequency.
func (g *Generator) summarize(text string, freq map[string]float64) string {
	var sentences []string
	for _, s := range g.sentenceSplit.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, s := range sentences {
		scores[i] = pair{i, g.weight(freq, s)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(g.maxSentences, len(scores))
	picked := make([]int, n)
	for i := 0; i < n; i++ {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)
	return join(sentences, picked)
}

func (g *Generator) frequencies(sentences []string) map[string]float64 {
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range g.tokens(s) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

// weight is the frequency mass of a sentence damped by its length.
func (g *Generator) weight(freq map[string]float64, sentence string) float64 {
	toks := g.tokens(sentence)
	if len(toks) == 0 {
		return 0
	}
	score := 0.0
	for _, tok := range toks {
		score += freq[tok]
	}
	return score / math.Sqrt(float64(len(toks)))
}

// ochiai is |A∩B| / sqrt(|A||B|) over distinct non-stopword tokens.
func (g *Generator) ochiai(question map[string]struct{}, sentence string) float64 {
	seen := g.tokenSet(sentence)
	if len(question) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := question[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(question))*float64(len(seen)))
}

func (g *Generator) tokenSet(text string) map[string]struct{} {
	toks := g.tokens(text)
	m := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		m[t] = struct{}{}
	}
	return m
}

func (g *Generator) tokens(text string) []string {
	raw := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := g.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func join(sentences []string, idx []int) string {
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = sentences[j]
	}
	return strings.Join(parts, " ")
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "do", "does", "did", "has", "have", "had",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
