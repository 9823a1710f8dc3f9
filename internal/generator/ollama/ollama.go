package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"ragchat/internal/domain"
	"ragchat/internal/generator"
)

// Generator answers with a local Ollama chat model.
type Generator struct {
	llm         *ollama.LLM
	model       string
	temperature float32
	timeout     time.Duration
}

// Config configures the Ollama generator.
type Config struct {
	ServerURL   string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &Generator{llm: llm, model: cfg.Model, temperature: cfg.Temperature, timeout: cfg.Timeout}, nil
}

func (g *Generator) Name() string { return "ollama:" + g.model }

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.llm.GenerateContent(ctx, messages(prompt), llms.WithTemperature(float64(g.temperature)))
	if err != nil {
		return "", generator.Failed(g.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", generator.Failed(g.Name(), fmt.Errorf("no choices returned"))
	}
	return generator.Check(g.Name(), resp.Choices[0].Content)
}

func messages(p domain.Prompt) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(p.History)+2)
	if p.System != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	for _, ex := range p.History {
		role := llms.ChatMessageTypeHuman
		if ex.Speaker == domain.SpeakerAssistant {
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, ex.Text))
	}
	return append(out, llms.TextParts(llms.ChatMessageTypeHuman, p.UserMessage()))
}
