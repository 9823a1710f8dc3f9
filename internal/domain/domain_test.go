package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSpansAndPages(t *testing.T) {
	var doc Document
	doc.AddSpan("abc", 1)
	doc.AddSpan("déf", 2)

	require.Len(t, doc.Spans, 2)
	assert.Equal(t, 0, doc.Spans[0].Offset)
	assert.Equal(t, 5, doc.Spans[1].Offset)
	assert.Equal(t, "abc\n\ndéf", doc.Content())

	assert.Equal(t, 1, doc.PageAt(0))
	assert.Equal(t, 1, doc.PageAt(4))
	assert.Equal(t, 2, doc.PageAt(5))
	assert.Equal(t, 2, doc.PageAt(7))
}

func TestUnpaginatedDocument(t *testing.T) {
	var doc Document
	doc.AddSpan("plain text", 0)
	assert.Equal(t, 0, doc.PageAt(3))
	assert.Equal(t, "plain text", doc.Content())
}

func TestContextBlock(t *testing.T) {
	p := Prompt{
		Grounded: true,
		Context: []Passage{
			{Source: "a.pdf", Page: 3, Text: "Cats purr."},
			{Source: "b.md", Text: "Dogs bark."},
		},
	}
	assert.Equal(t, "[1] a.pdf (page 3)\nCats purr.\n\n[2] b.md\nDogs bark.", p.ContextBlock())

	assert.Equal(t, NoContextMarker, Prompt{}.ContextBlock())
	assert.Equal(t, NoContextMarker, Prompt{Context: p.Context}.ContextBlock())
}

func TestRender(t *testing.T) {
	p := Prompt{
		System:   "Be brief.",
		Question: "Do cats purr?",
		History: []Exchange{
			{Speaker: SpeakerUser, Text: "hi"},
			{Speaker: SpeakerAssistant, Text: "hello"},
		},
	}
	want := "Be brief.\n\n" +
		"Conversation so far:\nuser: hi\nassistant: hello\n\n" +
		"Question: Do cats purr?\n\nContext:\n" + NoContextMarker + "\n\nAnswer:"
	assert.Equal(t, want, p.Render())
	assert.Equal(t, "Question: Do cats purr?\n\nContext:\n"+NoContextMarker+"\n\nAnswer:", Prompt{Question: "Do cats purr?"}.Render())
}
