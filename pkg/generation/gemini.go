package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// GeminiConfig configures NewGemini. Either APIKeys (Gemini API) or
// Project and Location (Vertex AI) must be set.
type GeminiConfig struct {
	APIKeys  []string
	Project  string
	Location string
	Model    string

	// Timeout bounds each GenerateContent call. Zero means no extra bound.
	Timeout time.Duration

	Logger logging.Logger
}

// contentModel is the subset of *genai.Models used here.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates text with Google's Gemini models. With several API keys
// configured, a rate-limited key is rotated out for the next one.
type Gemini struct {
	provider string
	model    string
	timeout  time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	clients []contentModel
	current int
}

// NewGemini creates a Gemini generator with one client per API key, or a
// single Vertex AI client when no keys are given.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	var (
		clients  []contentModel
		provider string
	)

	switch {
	case len(cfg.APIKeys) > 0:
		provider = ProviderGemini
		for i, key := range cfg.APIKeys {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  key,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, fmt.Errorf("create gemini client for key %d: %w", i+1, err)
			}
			clients = append(clients, client.Models)
		}
	case cfg.Project != "":
		provider = ProviderVertex
		location := cfg.Location
		if location == "" {
			location = "us-central1"
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:  cfg.Project,
			Location: location,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return nil, fmt.Errorf("create vertex client: %w", err)
		}
		clients = append(clients, client.Models)
	default:
		return nil, fmt.Errorf("%w: no Gemini API key or Vertex AI project configured", sterrors.ErrValidation)
	}

	return newGemini(provider, cfg, clients), nil
}

func newGemini(provider string, cfg GeminiConfig, clients []contentModel) *Gemini {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Gemini{
		provider: provider,
		model:    model,
		timeout:  cfg.Timeout,
		logger:   logger.With(logging.Component("gemini")),
		clients:  clients,
	}
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Generate sends prompt to the model and returns the concatenated text parts
// of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	start := g.current
	g.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < len(g.clients); attempt++ {
		idx := (start + attempt) % len(g.clients)

		text, err := g.call(ctx, g.clients[idx], prompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", NewGenerationError(g.provider, g.model, ctx.Err())
		}
		if len(g.clients) > 1 && isRateLimited(err) {
			g.logger.Warn("API key rate limited, rotating",
				logging.F("key_index", idx+1),
				logging.F("keys", len(g.clients)),
			)
			g.rotate(idx)
			lastErr = err
			continue
		}
		return "", NewGenerationError(g.provider, g.model, err)
	}

	return "", NewGenerationError(g.provider, g.model, fmt.Errorf("all API keys exhausted: %w", lastErr))
}

func (g *Gemini) call(ctx context.Context, client contentModel, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, err := client.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}

	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		var text strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if strings.TrimSpace(text.String()) != "" {
			return text.String(), nil
		}
	}

	return "", errors.New("empty response from model")
}

func (g *Gemini) rotate(from int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = (from + 1) % len(g.clients)
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
