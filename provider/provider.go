package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/webscout/models"
	openai_provider "github.com/mohammad-safakhou/webscout/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Provider is the interface the AI-backed decorators and the scraper
// generator depend on. Every method may fail; callers degrade gracefully.
type Provider interface {
	// EnhancePlan returns an improved step list for the target. The result
	// replaces nothing by itself; callers merge it into their heuristic plan.
	EnhancePlan(ctx context.Context, targetURL, objectives string, steps []models.PlanStep) ([]models.PlanStep, error)

	// AnalyzeContent returns a summary and a list of insights for page text.
	AnalyzeContent(ctx context.Context, url, text string) (string, []string, error)

	// GenerateCode produces scraper source code from a specification.
	GenerateCode(ctx context.Context, specification string) (string, error)

	// RefineCode produces a new code version given the previous one and the
	// failure it should fix.
	RefineCode(ctx context.Context, specification, code, failure string) (string, error)

	// Chat answers a user message about an exploration session.
	Chat(ctx context.Context, history []models.ChatTurn, message string) (string, error)
}

// Options configures a provider client.
type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewProvider creates an LLM client based on the selected backend.
func NewProvider(client Client, opts Options) (Provider, error) {
	switch client {
	case OpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai api key not set")
		}
		if opts.Model == "" {
			opts.Model = "gpt-4o-mini"
		}
		if opts.Timeout <= 0 {
			opts.Timeout = 30 * time.Second
		}
		return openai_provider.NewOpenAIClient(opts.APIKey, opts.Model, opts.Temperature, opts.MaxTokens, opts.Timeout), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
