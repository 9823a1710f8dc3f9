package gemini

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"ragchat/internal/domain"
	"ragchat/internal/generator"
)

// Generator answers with the Gemini API.
type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// Config configures the Gemini generator.
type Config struct {
	APIKeyEnv   string
	Model       string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

func New(ctx context.Context, cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Generator{client: client, model: cfg.Model, temperature: cfg.Temperature, timeout: cfg.Timeout}, nil
}

func (g *Generator) Name() string { return "gemini:" + g.model }

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents(prompt), cfg)
	if err != nil {
		return "", generator.Failed(g.Name(), err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", generator.Failed(g.Name(), fmt.Errorf("no candidates returned"))
	}
	return generator.Check(g.Name(), resp.Text())
}

func contents(p domain.Prompt) []*genai.Content {
	out := make([]*genai.Content, 0, len(p.History)+1)
	for _, ex := range p.History {
		var role genai.Role = genai.RoleUser
		if ex.Speaker == domain.SpeakerAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(ex.Text, role))
	}
	return append(out, genai.NewContentFromText(p.UserMessage(), genai.RoleUser))
}
