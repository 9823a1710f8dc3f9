package chunker

import (
	"regexp"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
// A chunk never exceeds maxChars runes; an oversized sentence is windowed.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	maxChars          int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences, maxChars int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	maxChars, _ = normalizeSize(maxChars, 0)
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		maxChars:          maxChars,
		splitter:          regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	b, err := newBuilder(document)
	if err != nil {
		return nil, err
	}
	sentences := c.sentenceRanges(b)
	if len(sentences) == 0 {
		b.add(0, len(b.runes))
		return b.chunks, nil
	}

	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		for end > i+1 && sentences[end-1][1]-sentences[i][0] > c.maxChars {
			end--
		}
		from, to := sentences[i][0], sentences[end-1][1]
		if to-from > c.maxChars {
			for _, r := range windowRanges(b.runes, from, to, c.maxChars, 0) {
				b.add(r[0], r[1])
			}
		} else {
			b.add(from, to)
		}
		if end == len(sentences) {
			break
		}
		next := end - c.overlapSentences
		if next <= i {
			next = end
		}
		i = next
	}
	return b.chunks, nil
}

// sentenceRanges returns trimmed rune ranges of every non-blank sentence.
func (c *SentenceChunker) sentenceRanges(b *builder) [][2]int {
	content := string(b.runes)
	matches := c.splitter.FindAllStringIndex(content, -1)
	out := make([][2]int, 0, len(matches))
	bytePos, runePos := 0, 0
	toRune := func(off int) int {
		runePos += utf8.RuneCountInString(content[bytePos:off])
		bytePos = off
		return runePos
	}
	for _, m := range matches {
		start := toRune(m[0])
		end := toRune(m[1])
		start, end = trimRange(b.runes, start, end)
		if start < end {
			out = append(out, [2]int{start, end})
		}
	}
	return out
}
