package domain

import (
	"fmt"
	"strings"
)

// NoContextMarker replaces the context section when retrieval found nothing.
const NoContextMarker = "NO RELEVANT CONTEXT WAS FOUND IN THE KNOWLEDGE BASE."

// Passage is one retrieved chunk as it appears in a prompt.
type Passage struct {
	Source string
	Page   int
	Text   string
	Score  float64
}

// Prompt is a single generation request: instruction, context and question.
type Prompt struct {
	System   string
	Question string
	Context  []Passage
	Grounded bool
	History  []Exchange
}

// ContextBlock renders the context section.
func (p Prompt) ContextBlock() string {
	if !p.Grounded || len(p.Context) == 0 {
		return NoContextMarker
	}
	var b strings.Builder
	for i, c := range p.Context {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, c.Source)
		if c.Page > 0 {
			fmt.Fprintf(&b, " (page %d)", c.Page)
		}
		b.WriteString("\n")
		b.WriteString(c.Text)
	}
	return b.String()
}

// UserMessage renders everything except the system instruction.
func (p Prompt) UserMessage() string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(p.Question)
	b.WriteString("\n\nContext:\n")
	b.WriteString(p.ContextBlock())
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Render flattens the prompt for models that take a single string.
func (p Prompt) Render() string {
	var b strings.Builder
	if p.System != "" {
		b.WriteString(p.System)
		b.WriteString("\n\n")
	}
	if len(p.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, ex := range p.History {
			fmt.Fprintf(&b, "%s: %s\n", ex.Speaker, ex.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString(p.UserMessage())
	return b.String()
}
