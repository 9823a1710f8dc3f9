package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
	"ragchat/internal/knowledgebase"
)

// NoticeMsg is shown in the transcript as a system line. Other goroutines
// (the directory watcher) deliver it with Program.Send.
type NoticeMsg string

type ingestedMsg struct {
	path   string
	report knowledgebase.IngestReport
	err    error
}

type answeredMsg struct {
	question string
	answer   knowledgebase.Answer
	err      error
}

type clearedMsg struct{ err error }

type lineKind int

const (
	lineUser lineKind = iota
	lineAssistant
	lineSystem
	lineError
)

type line struct {
	kind lineKind
	text string
}

// Model is the Bubble Tea chat model over one knowledge base.
type Model struct {
	ctx         context.Context
	assistant   knowledgebase.Assistant
	startup     []string
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	lines       []line
	inflight    int
	status      string
	ready       bool
	showSources bool
	lastAnswer  knowledgebase.Answer
	lastQuery   string
	onClear     func()
}

// Option customises a Model.
type Option func(*Model)

// OnClear registers fn to run after every successful /clear.
func OnClear(fn func()) Option {
	return func(m *Model) { m.onClear = fn }
}

// New creates a chat model. Paths are ingested one after another on start.
func New(ctx context.Context, assistant knowledgebase.Assistant, paths []string, opts ...Option) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /ingest <file>, /clear, /sources, /quit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle))
	m := Model{
		ctx:       ctx,
		assistant: assistant,
		startup:   paths,
		input:     ti,
		viewport:  vp,
		spinner:   sp,
		status:    "Ready. Ingest a document to ground the answers.",
	}
	for _, opt := range opts {
		opt(&m)
	}
	if len(paths) > 0 {
		m.beginIngest(paths)
	}
	return m
}

// Init starts the cursor blink, the spinner and the startup ingestion.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if len(m.startup) > 0 {
		cmds = append(cmds, m.ingestCmd(m.startup))
	}
	return tea.Batch(cmds...)
}

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case NoticeMsg:
		m.push(lineSystem, string(msg))
		return m, nil

	case ingestedMsg:
		m.inflight--
		if msg.err != nil {
			m.push(lineError, fmt.Sprintf("Failed to ingest %s: %v", msg.path, msg.err))
		} else {
			m.push(lineSystem, fmt.Sprintf("Ingested %s (%d chunks) in %.2f seconds", msg.report.Source, msg.report.Chunks, msg.report.Duration.Seconds()))
		}
		m.setIdleStatus()
		return m, nil

	case answeredMsg:
		m.inflight--
		if msg.err != nil {
			m.push(lineError, "Error: "+msg.err.Error())
		} else {
			m.lastAnswer = msg.answer
			m.lastQuery = msg.question
			m.push(lineAssistant, msg.answer.Text)
			if m.showSources {
				m.push(lineSystem, renderSources(msg.answer, msg.question))
			}
		}
		m.setIdleStatus()
		return m, nil

	case clearedMsg:
		m.inflight--
		if msg.err != nil {
			m.push(lineError, "Clear failed: "+msg.err.Error())
		} else {
			m.lines = nil
			m.lastAnswer = knowledgebase.Answer{}
			m.push(lineSystem, "Knowledge base cleared.")
		}
		m.setIdleStatus()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.inflight > 0 {
		m.status = "Still working, please wait."
		return m, nil
	}
	m.input.SetValue("")

	if !strings.HasPrefix(text, "/") {
		m.push(lineUser, text)
		m.inflight++
		m.status = "Thinking..."
		return m, m.askCmd(text)
	}

	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.inflight++
		m.status = "Clearing..."
		return m, m.clearCmd()
	case "/ingest":
		if len(fields) < 2 {
			m.status = "Usage: /ingest <file> [file...]"
			return m, nil
		}
		m.beginIngest(fields[1:])
		return m, m.ingestCmd(fields[1:])
	case "/sources":
		m.showSources = !m.showSources
		if m.showSources && len(m.lastAnswer.Sources) > 0 {
			m.push(lineSystem, renderSources(m.lastAnswer, m.lastQuery))
		}
		m.status = fmt.Sprintf("Sources %s.", onOff(m.showSources))
		return m, nil
	default:
		m.status = "Unknown command " + fields[0]
		return m, nil
	}
}

func (m *Model) beginIngest(paths []string) {
	for _, p := range paths {
		m.push(lineSystem, "Ingesting "+p)
	}
	m.inflight += len(paths)
	m.status = "Ingesting..."
}

// ingestCmd ingests paths strictly one after another.
func (m Model) ingestCmd(paths []string) tea.Cmd {
	assistant, ctx := m.assistant, m.ctx
	cmds := make([]tea.Cmd, len(paths))
	for i, p := range paths {
		cmds[i] = func() tea.Msg {
			report, err := assistant.Ingest(ctx, p)
			return ingestedMsg{path: p, report: report, err: err}
		}
	}
	return tea.Sequence(cmds...)
}

func (m Model) askCmd(question string) tea.Cmd {
	assistant, ctx := m.assistant, m.ctx
	return func() tea.Msg {
		ans, err := assistant.Ask(ctx, question)
		return answeredMsg{question: question, answer: ans, err: err}
	}
}

func (m Model) clearCmd() tea.Cmd {
	assistant, ctx, onClear := m.assistant, m.ctx, m.onClear
	return func() tea.Msg {
		err := assistant.Clear(ctx)
		if err == nil && onClear != nil {
			onClear()
		}
		return clearedMsg{err: err}
	}
}

func (m *Model) push(kind lineKind, text string) {
	m.lines = append(m.lines, line{kind: kind, text: text})
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) setIdleStatus() {
	if m.inflight > 0 {
		return
	}
	m.status = "Ready."
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("ragchat")
	status := statusStyle.Render(m.status)
	if m.inflight > 0 {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return systemStyle.Render("No messages yet.")
	}
	width := max(20, m.viewport.Width-2)
	parts := make([]string, len(m.lines))
	for i, l := range m.lines {
		switch l.kind {
		case lineUser:
			parts[i] = userStyle.Render("You: ") + lipgloss.NewStyle().Width(width).Render(l.text)
		case lineAssistant:
			parts[i] = assistantStyle.Render("Assistant: ") + lipgloss.NewStyle().Width(width).Render(l.text)
		case lineError:
			parts[i] = errorStyle.Width(width).Render(l.text)
		default:
			parts[i] = systemStyle.Width(width).Render(l.text)
		}
	}
	return strings.Join(parts, "\n")
}

func renderSources(ans knowledgebase.Answer, question string) string {
	if len(ans.Sources) == 0 {
		return "No sources: the knowledge base had no relevant context."
	}
	var b strings.Builder
	for i, r := range ans.Sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, sourceLabel(r.Chunk))
		fmt.Fprintf(&b, "  score=%.3f\n", r.Score)
		b.WriteString(highlightBestSentence(r.Chunk.Text, question))
	}
	return b.String()
}

func sourceLabel(c domain.Chunk) string {
	if c.Page > 0 {
		return fmt.Sprintf("%s (page %d)", c.Source, c.Page)
	}
	return c.Source
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	systemStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	spinnerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(trimAll(sentences), " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := trimAll(sentences)
	out[bestIdx] = highlightStyle.Render(out[bestIdx])
	return strings.Join(out, " ")
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

