package chunker

import (
	"unicode"

	"ragchat/internal/domain"
)

// WindowChunker cuts text into windows of at most size runes that share
// overlap runes with their predecessor. Cuts land on whitespace when the
// window has any beyond the overlap region.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	size, overlap = normalizeSize(size, overlap)
	return &WindowChunker{size: size, overlap: overlap}
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	b, err := newBuilder(document)
	if err != nil {
		return nil, err
	}
	for _, r := range windowRanges(b.runes, 0, len(b.runes), c.size, c.overlap) {
		b.add(r[0], r[1])
	}
	return b.chunks, nil
}

// windowRanges returns raw [start, end) windows covering runes[from:to].
func windowRanges(runes []rune, from, to, size, overlap int) [][2]int {
	var out [][2]int
	start := from
	for start < to && unicode.IsSpace(runes[start]) {
		start++
	}
	for start < to {
		end := start + size
		if end > to {
			end = to
		}
		if end < to {
			for j := end; j > start+overlap; j-- {
				if unicode.IsSpace(runes[j]) && !unicode.IsSpace(runes[j-1]) {
					end = j
					break
				}
			}
		}
		out = append(out, [2]int{start, end})
		if end >= to {
			break
		}

		// Overlap is measured from the last non-space rune so a cut inside
		// a whitespace run still shares text with the next window.
		trimmed := end
		for trimmed > start && unicode.IsSpace(runes[trimmed-1]) {
			trimmed--
		}
		next := trimmed - overlap
		if overlap == 0 || next <= start {
			next = end
		} else if !unicode.IsSpace(runes[next-1]) && !unicode.IsSpace(runes[next]) {
			next = wordStart(runes, start, next, trimmed)
		}
		for next < to && unicode.IsSpace(runes[next]) {
			next++
		}
		start = next
	}
	return out
}

// wordStart moves a mid-word position to a word boundary inside (start, limit).
// The following word is preferred; otherwise the current word's start is used,
// and pos is kept when neither exists.
func wordStart(runes []rune, start, pos, limit int) int {
	for k := pos + 1; k < limit; k++ {
		if unicode.IsSpace(runes[k]) {
			for k < limit && unicode.IsSpace(runes[k]) {
				k++
			}
			if k < limit {
				return k
			}
			break
		}
	}
	for k := pos; k > start; k-- {
		if unicode.IsSpace(runes[k-1]) {
			return k
		}
	}
	return pos
}
